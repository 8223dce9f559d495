package auth

import (
	"crypto/sha1"
	"math/big"
)

// ServerIDHash computes the session server id: SHA-1 over the empty server id
// string, the shared secret and the public key, printed as a signed
// two's-complement hex number without zero padding.
func ServerIDHash(secret, publicDER []byte) string {
	h := sha1.New()
	h.Write(secret)
	h.Write(publicDER)
	return twosComplementHex(h.Sum(nil))
}

func twosComplementHex(digest []byte) string {
	n := new(big.Int).SetBytes(digest)
	if digest[0]&0x80 != 0 {
		// Interpret as negative: n - 2^(8*len)
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(digest)*8)))
	}
	return n.Text(16)
}
