package protocol

import (
	"bufio"
	"bytes"
	"net"
)

const legacyPingByte = 0xFE

var httpPrefixes = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"),
	[]byte("DELE"),
	[]byte("PATC"),
	[]byte("CONN"),
}

// SniffConn wraps a connection so the first bytes can be inspected without consuming them
type SniffConn struct {
	net.Conn
	br *bufio.Reader
}

// NewSniffConn creates a new SniffConn
func NewSniffConn(conn net.Conn) *SniffConn {
	return &SniffConn{
		Conn: conn,
		br:   bufio.NewReader(conn),
	}
}

// Sniff classifies the client by peeking at its first bytes
func (s *SniffConn) Sniff() (Kind, error) {
	first, err := s.br.Peek(1)
	if err != nil {
		return KindModern, err
	}
	if first[0] == legacyPingByte {
		return KindLegacyPing, nil
	}

	// a modern handshake has packet id 0x00 as its second byte, so HTTP text cannot collide
	peeked, err := s.br.Peek(4)
	if err != nil {
		// short first write; let the framer deal with it
		return KindModern, nil
	}
	for _, p := range httpPrefixes {
		if bytes.Equal(peeked, p) {
			return KindHTTP, nil
		}
	}
	return KindModern, nil
}

// Read reads through the peek buffer
func (s *SniffConn) Read(p []byte) (int, error) {
	return s.br.Read(p)
}
