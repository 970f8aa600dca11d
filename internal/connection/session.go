package connection

import (
	"sync"

	"github.com/srg/blestream/internal/device"
	"github.com/srg/blestream/internal/reassembly"
)

// session is everything tied to one physical connection. It is discarded as
// a whole when the link goes away and never reused.
type session struct {
	id   uint64
	link device.Link
	char device.Characteristic

	mu     sync.Mutex
	buf    *reassembly.Buffer
	seq    uint64
	closed bool

	// fatal receives the first unrecoverable fragment error.
	fatal chan error
}

func newSession(id uint64, link device.Link, buf *reassembly.Buffer) *session {
	return &session{
		id:    id,
		link:  link,
		buf:   buf,
		fatal: make(chan error, 1),
	}
}

// address is the remote peripheral's address, or "" when the link does not know it.
func (s *session) address() string {
	if p := s.link.Peripheral(); p != nil {
		return p.Address()
	}
	return ""
}

// close marks the session dead and drops any partial packet. Idempotent.
func (s *session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.buf.Reset()
	return true
}

func (s *session) fail(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}
