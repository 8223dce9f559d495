package cipher

import (
	stdcipher "crypto/cipher"
	"net"
	"sync"
)

// Conn encrypts everything written and decrypts everything read on the wrapped
// connection. Reads must come from a single goroutine; writes are serialized.
type Conn struct {
	net.Conn

	dec stdcipher.Stream

	wmu sync.Mutex
	enc stdcipher.Stream
	out []byte
}

// Wrap enables encryption on conn with the shared secret
func Wrap(conn net.Conn, secret []byte, impl Impl) (*Conn, error) {
	enc, err := NewStream(secret, true, impl)
	if err != nil {
		return nil, err
	}
	dec, err := NewStream(secret, false, impl)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: conn, enc: enc, dec: dec}, nil
}

// Read reads and decrypts in place
func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.dec.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// Write encrypts p into a scratch buffer and writes it
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if cap(c.out) < len(p) {
		c.out = make([]byte, len(p))
	}
	out := c.out[:len(p)]
	c.enc.XORKeyStream(out, p)
	return c.Conn.Write(out)
}

// DecryptInPlace runs bytes that were read from the raw connection before
// encryption was enabled through the decrypt stream. They must precede any
// byte returned by Read.
func (c *Conn) DecryptInPlace(b []byte) {
	c.dec.XORKeyStream(b, b)
}
