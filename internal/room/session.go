package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/collabtext/collabd/internal/wire"
)

// ErrSessionClosed is returned by WritePump when the server side has
// closed the session (heartbeat timeout, compaction, eviction).
var ErrSessionClosed = errors.New("room: session closed")

// state is the server-side view of a Session's lifecycle.
type state int

const (
	// StateOpened: the session exists but has not yet been registered
	// with a room's session set.
	StateOpened state = iota
	// StateAwaitingHello: registered, but read-only until the client's
	// first presence message or operation batch arrives.
	StateAwaitingHello
	// StateActive: accepting operation batches, presence updates, and
	// receiving fan-out.
	StateActive
	// StateClosed: removed from the room; terminal.
	StateClosed
)

func (s state) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// outboundQueueSize bounds each session's pending-write queue. A session
// that falls this far behind its peers is closed as slow rather than
// left to grow without bound.
const outboundQueueSize = 256

// Session is a server-side record of one connected participant: its
// assigned siteId, output queue, last observed heartbeat timestamp, and
// the offset it joined at.
type Session struct {
	ID         string
	SiteID     int64
	Name       string
	JoinOffset int

	conn *websocket.Conn

	mu       sync.Mutex
	st       state
	lastSeen time.Time

	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(siteID int64, joinOffset int, conn *websocket.Conn) *Session {
	return &Session{
		ID:         uuid.NewString(),
		SiteID:     siteID,
		JoinOffset: joinOffset,
		conn:       conn,
		st:         StateOpened,
		lastSeen:   time.Now(),
		outbound:   make(chan []byte, outboundQueueSize),
		closed:     make(chan struct{}),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *Session) setState(st state) {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSeen)
}

// enqueue encodes msg and makes a non-blocking attempt to place it on
// the outbound queue. A full queue means the session has fallen behind;
// it is closed as slow rather than allowed to block the room's mailbox.
func (s *Session) enqueue(msg any) {
	data, err := wire.Encode(msg)
	if err != nil {
		return
	}
	select {
	case s.outbound <- data:
	default:
		s.Close()
	}
}

// Close marks the session closed. Safe to call more than once or
// concurrently.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.closed)
	})
}

// Closed is signaled once the session has been closed.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// WritePump drains the outbound queue to the socket until the session is
// closed, the context is canceled, or a write fails. It is meant to run
// in its own goroutine, paired with ReadPump via errgroup so that either
// one exiting tears down both. A server-initiated Close returns
// ErrSessionClosed so the shared errgroup context is canceled and the
// blocked conn.Read in ReadPump is interrupted; messages already queued
// at that point are written out first, and a write failure during that
// flush ends it early.
func (s *Session) WritePump(ctx context.Context) error {
	for {
		select {
		case <-s.closed:
			// Flush whatever is already queued — the control message
			// announcing why the session is going away (compaction,
			// disconnect) is enqueued just before Close.
			for {
				select {
				case data := <-s.outbound:
					if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
						return ErrSessionClosed
					}
				default:
					return ErrSessionClosed
				}
			}
		case <-ctx.Done():
			s.Close()
			return ctx.Err()
		case data := <-s.outbound:
			if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
				s.Close()
				return err
			}
		}
	}
}

// ReadPump reads and decodes messages from the socket, invoking handle
// for each one, until the session is closed, the context is canceled, or
// a read fails.
func (s *Session) ReadPump(ctx context.Context, handle func(any) error) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.Close()
			return err
		}
		s.touch()

		msg, err := wire.Decode(data)
		if err != nil {
			s.Close()
			return err
		}
		if err := handle(msg); err != nil {
			s.Close()
			return err
		}
	}
}
