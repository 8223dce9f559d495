package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/SkynetNext/mc-proxy/internal/buffer"
)

// ErrConcurrentNext is returned when Next is called while another Next is still waiting
var ErrConcurrentNext = errors.New("protocol: concurrent Next on packet queue")

// ProtocolMismatchError is returned by Expect when the next packet has a different id
type ProtocolMismatchError struct {
	Expected int32
	Got      int32
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("Expected packet ID 0x%02x, got 0x%02x", e.Expected, e.Got)
}

// Queue pulls frames off a byte stream for request/response style exchanges
// (handshake, login, switching). Only one consumer may wait at a time.
//
// Next does not interrupt a blocked read when ctx is cancelled; callers close the
// underlying connection or set a deadline to unblock it.
type Queue struct {
	mu      sync.Mutex
	src     io.Reader
	framer  *Framer
	backlog []Frame
	err     error
	waiting atomic.Bool
}

// NewQueue creates a queue reading from src
func NewQueue(src io.Reader, maxPacket int) *Queue {
	return &Queue{src: src, framer: NewFramer(maxPacket)}
}

// Rebind replaces the byte source. Already buffered bytes that do not yet form a frame
// are passed through convert first, so a peer that enables encryption mid-stream
// keeps a consistent stream.
func (q *Queue) Rebind(src io.Reader, convert func([]byte)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.src = src
	if convert != nil {
		q.framer.Transform(convert)
	}
}

// Buffered returns the number of frames already decoded but not consumed
func (q *Queue) Buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Next returns the next frame, reading from the source when the backlog is empty
func (q *Queue) Next(ctx context.Context) (Frame, error) {
	if !q.waiting.CompareAndSwap(false, true) {
		return Frame{}, ErrConcurrentNext
	}
	defer q.waiting.Store(false)

	buf := buffer.Get()
	defer buffer.Put(buf)

	for {
		q.mu.Lock()
		if len(q.backlog) > 0 {
			f := q.backlog[0]
			q.backlog[0] = Frame{}
			q.backlog = q.backlog[1:]
			q.mu.Unlock()
			return f, nil
		}
		if q.err != nil {
			err := q.err
			q.mu.Unlock()
			return Frame{}, err
		}
		src := q.src
		q.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		n, rerr := src.Read(*buf)

		q.mu.Lock()
		if n > 0 {
			frames, ferr := q.framer.Push((*buf)[:n])
			q.backlog = append(q.backlog, frames...)
			if ferr != nil {
				q.err = ferr
			}
		}
		if rerr != nil && q.err == nil {
			q.err = rerr
		}
		q.mu.Unlock()
	}
}

// Expect reads the next frame and decodes it with s.
// A different packet id is a *ProtocolMismatchError.
func (q *Queue) Expect(ctx context.Context, s *Schema) (Values, error) {
	f, err := q.Next(ctx)
	if err != nil {
		return nil, err
	}
	if f.ID != s.ID {
		return nil, &ProtocolMismatchError{Expected: s.ID, Got: f.ID}
	}
	return Read(s, f.Payload)
}

// ExpectPacket reads the next frame into p
func (q *Queue) ExpectPacket(ctx context.Context, p Packet) error {
	f, err := q.Next(ctx)
	if err != nil {
		return err
	}
	return Unmarshal(f, p)
}

// OnPacket delivers frames to fn one at a time, in order, until the stream closes,
// ctx is cancelled or fn returns an error. A clean close returns nil.
func (q *Queue) OnPacket(ctx context.Context, fn func(Frame) error) error {
	for {
		f, err := q.Next(ctx)
		if err != nil {
			if IsClosed(err) {
				return nil
			}
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
}

// IsClosed reports whether err means the peer or the local side closed the stream
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
