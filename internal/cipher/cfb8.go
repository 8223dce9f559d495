// Package cipher implements the AES/CFB-8 stream cipher used once a client
// has completed online-mode authentication.
package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"fmt"

	"github.com/Tnze/go-mc/net/CFB8"
)

// Impl selects a CFB-8 implementation. Both produce identical byte streams.
type Impl int

const (
	// ImplLibrary uses the go-mc CFB8 stream
	ImplLibrary Impl = iota
	// ImplManual drives AES in ECB mode one byte at a time
	ImplManual
)

func (i Impl) String() string {
	if i == ImplManual {
		return "manual"
	}
	return "library"
}

// ParseImpl maps a config value to an Impl
func ParseImpl(s string) (Impl, error) {
	switch s {
	case "", "library":
		return ImplLibrary, nil
	case "manual":
		return ImplManual, nil
	}
	return ImplLibrary, fmt.Errorf("unknown cipher implementation %q", s)
}

// NewStream returns a CFB-8 stream keyed with key, using key as the IV as well.
// The IV register carries over between XORKeyStream calls.
func NewStream(key []byte, encrypt bool, impl Impl) (stdcipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	if len(key) != block.BlockSize() {
		return nil, fmt.Errorf("cipher: shared secret must be %d bytes, got %d", block.BlockSize(), len(key))
	}

	iv := append([]byte(nil), key...)
	if impl == ImplManual {
		return newManualCFB8(block, iv, encrypt), nil
	}
	if encrypt {
		return CFB8.NewCFB8Encrypt(block, iv), nil
	}
	return CFB8.NewCFB8Decrypt(block, iv), nil
}

// manualCFB8 encrypts the shift register with the raw block cipher for every byte.
type manualCFB8 struct {
	block     stdcipher.Block
	register  []byte
	keystream []byte
	encrypt   bool
}

func newManualCFB8(block stdcipher.Block, iv []byte, encrypt bool) *manualCFB8 {
	return &manualCFB8{
		block:     block,
		register:  iv,
		keystream: make([]byte, block.BlockSize()),
		encrypt:   encrypt,
	}
}

func (m *manualCFB8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("cipher: output smaller than input")
	}
	last := len(m.register) - 1
	for i, in := range src {
		m.block.Encrypt(m.keystream, m.register)
		out := in ^ m.keystream[0]

		// the ciphertext byte feeds the register in both directions
		feedback := out
		if !m.encrypt {
			feedback = in
		}
		copy(m.register, m.register[1:])
		m.register[last] = feedback
		dst[i] = out
	}
}
