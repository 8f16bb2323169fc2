// Package sender implements the Batch Sender: a bounded, non-blocking
// batch buffer feeding a single-writer wire connection over a Unix domain
// socket. Records are written back to back in package event's encoding
// (Flag Set word, kind byte, kind-specific body); they carry no overall
// length prefix, and a reader finds each record's end from its kind.
// Grounded on ingest/entryWriter.go's
// buffered-writer-over-net.Conn design and ingest/ingestConnection.go's
// connection lifecycle, radically simplified: no ack protocol, no tag
// negotiation, no server-version gating, no ping/pong keepalive. The wire
// is one-directional and has no consumer handshake.
package sender

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/novafacing/cannonball/event"
	"github.com/novafacing/cannonball/log"
)

// BatchSize is the fixed number of events buffered before a flush, per
// spec.md §4.4.
const BatchSize = 64

// ErrDead is returned by Teardown if the flush it attempts fails. Submit
// never returns it: a dead connection causes submits to be dropped
// silently, per spec.md §4.4 ("subsequent submits are dropped silently").
// There is no retry or reconnect: spec.md §9 calls this out explicitly as
// a deliberate choice, not an oversight.
var ErrDead = errors.New("sender: connection is dead, no retry")

type flusher interface {
	Flush() error
}

// Sender is a single-writer socket client. All exported methods are safe
// for concurrent use; Submit is expected to be called from many goroutines
// at once (one per host callback thread).
type Sender struct {
	mu    sync.Mutex
	conn  net.Conn
	bw    *bufio.Writer
	flshr flusher
	lgr   *log.Logger

	batch   []event.Record
	dead    bool
	dropped uint64
}

// Setup dials sock_path, retrying until the endpoint is listening or
// dialTimeout elapses, matching spec.md §4.4's "wait until it is listening,
// blocking acceptable at initialization" contract, then builds a Sender
// around the resulting connection.
func Setup(sockPath, compress string, dialTimeout time.Duration, lgr *log.Logger) (*Sender, error) {
	deadline := time.Now().Add(dialTimeout)
	var conn net.Conn
	var err error
	for {
		conn, err = net.DialTimeout("unix", sockPath, time.Second)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("sender: %s never started listening: %w", sockPath, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	return New(conn, compress, lgr)
}

// New builds a Sender around an already-established connection. compress
// selects the stream codec: "none" writes the encoded records as they are;
// "snappy" wraps the whole record stream, record headers included, in
// snappy's framed stream format.
// Exposed separately from Setup so tests and alternative transports (an
// already-accepted net.Conn, a net.Pipe) can construct a Sender without
// dialing.
func New(conn net.Conn, compress string, lgr *log.Logger) (*Sender, error) {
	s := &Sender{
		conn:  conn,
		bw:    bufio.NewWriter(conn),
		lgr:   lgr,
		batch: make([]event.Record, 0, BatchSize),
	}
	if err := s.startCompression(compress); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// startCompression wraps the connection's write side in the requested
// codec. Caller must hold s.mu, or call before the Sender is published.
func (s *Sender) startCompression(codec string) error {
	switch codec {
	case "", "none":
	case "snappy":
		wtr := snappy.NewWriter(s.conn)
		s.flshr = wtr
		s.bw.Reset(wtr)
	default:
		return fmt.Errorf("sender: unknown compression codec %q", codec)
	}
	return nil
}

// Submit appends rec to the current batch, flushing once it reaches
// BatchSize. Submit never blocks on the network except during the flush
// that a full batch triggers. Once the connection has died, submits are
// dropped silently and counted in Dropped rather than returned as errors:
// the caller is on the host's hot path and must not treat a dead consumer
// as a reason to disrupt guest execution.
func (s *Sender) Submit(rec event.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		s.dropped++
		return nil
	}
	s.batch = append(s.batch, rec)
	if len(s.batch) >= BatchSize {
		return s.flushLocked()
	}
	return nil
}

// Dropped reports how many Submit calls were silently discarded after the
// connection died.
func (s *Sender) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Teardown flushes any partial batch and closes the socket. Idempotent:
// calling it again after success, or after the connection has already
// died, is a no-op that returns nil.
func (s *Sender) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return nil
	}
	err := s.flushLocked()
	s.dead = true
	s.conn.Close()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDead, err)
	}
	return nil
}

// flushLocked writes the current batch to the wire and clears it. Caller
// must hold s.mu. A write failure transitions the Sender to the terminal
// dead state; the batch already produced is lost, matching spec.md §7's
// "Sender failures beyond init transition ... no retry, no reconnect."
func (s *Sender) flushLocked() error {
	for i := range s.batch {
		if _, err := s.batch[i].EncodeWriter(s); err != nil {
			s.dead = true
			if s.lgr != nil {
				s.lgr.Error("sender: encode failed, dropping batch",
					log.KV("batch_size", len(s.batch)),
					log.KVErr(err))
			}
			s.batch = s.batch[:0]
			return err
		}
	}
	s.batch = s.batch[:0]
	if err := s.bw.Flush(); err != nil {
		s.dead = true
		if s.lgr != nil {
			s.lgr.Error("sender: flush failed, connection dead", log.KVErr(err))
		}
		return err
	}
	if s.flshr != nil {
		if err := s.flshr.Flush(); err != nil {
			s.dead = true
			if s.lgr != nil {
				s.lgr.Error("sender: compressed flush failed, connection dead", log.KVErr(err))
			}
			return err
		}
	}
	return nil
}

// Write implements io.Writer against the buffered writer, retrying partial
// writes until the buffer accepts the whole chunk or reports an error.
// Grounded on EntryWriter.writeAll's segmented-write loop.
func (s *Sender) Write(b []byte) (int, error) {
	var written int
	for written < len(b) {
		n, err := s.bw.Write(b[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, errors.New("sender: short write")
		}
		written += n
	}
	return written, nil
}

// Dead reports whether the Sender has transitioned to its terminal state.
func (s *Sender) Dead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

// Pending reports the number of events currently buffered, unflushed.
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batch)
}
