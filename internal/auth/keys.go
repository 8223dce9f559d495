// Package auth implements online-mode login: the server key pair, the
// session service check, offline identities and identity remapping.
package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"sync"
)

// KeyBits is the RSA modulus size clients expect
const KeyBits = 1024

// KeyPair is the proxy's RSA key, generated once per process
type KeyPair struct {
	key       *rsa.PrivateKey
	publicDER []byte
}

var (
	defaultKeyOnce sync.Once
	defaultKey     *KeyPair
	defaultKeyErr  error
)

// DefaultKeyPair returns the process-wide key pair, generating it on first use
func DefaultKeyPair() (*KeyPair, error) {
	defaultKeyOnce.Do(func() {
		defaultKey, defaultKeyErr = GenerateKeyPair()
	})
	return defaultKey, defaultKeyErr
}

// GenerateKeyPair creates a fresh key pair
func GenerateKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rsa key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	return &KeyPair{key: key, publicDER: der}, nil
}

// PublicDER returns the public key as SubjectPublicKeyInfo DER
func (k *KeyPair) PublicDER() []byte {
	return k.publicDER
}

// Decrypt reverses a client's PKCS#1 v1.5 encryption with the public key
func (k *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	return rsa.DecryptPKCS1v15(rand.Reader, k.key, ciphertext)
}

// NewVerifyToken returns 4 random bytes for the encryption request
func NewVerifyToken() ([]byte, error) {
	token := make([]byte, 4)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}
	return token, nil
}
