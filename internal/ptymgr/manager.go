package ptymgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/gridconfig"
	"github.com/andyrewlee/gridmux/internal/logging"
)

// readChunkSize is the maximum number of bytes the reader task drains from
// the PTY in a single OS read, per spec.
const readChunkSize = 4096

// outputQueueDepth bounds how many output chunks may be buffered before the
// reader task must block, so byte ordering is preserved under backpressure.
const outputQueueDepth = 64

// Id identifies a spawned terminal within a Manager.
type Id string

// ErrNotFound is returned by Resize/Close for an unknown Id.
var ErrNotFound = errors.New("ptymgr: session not found")

// Chunk is one unit of PTY output, delivered in order.
type Chunk struct {
	Data []byte
}

// ExitEvent is published once by the reader/writer pair when the child
// exits or an I/O error terminates the session. Code is -1 for I/O errors
// that occur after a successful spawn.
type ExitEvent struct {
	Code int
	Err  error
}

// InputSink accepts bytes to write to the PTY, in order.
type InputSink = *asyncutil.Queue[[]byte]

// OutputSource delivers PTY output chunks, in order.
type OutputSource = *asyncutil.Queue[Chunk]

// InputWriterAdapter exposes an InputSink as an io.Writer-shaped value
// (Write(p []byte) (int, error)), so term.Session (which depends only on
// that narrow interface) can send bytes without importing ptymgr.
type InputWriterAdapter struct {
	sink InputSink
}

// NewInputWriter wraps sink for use as a term.Session InputWriter.
func NewInputWriter(sink InputSink) InputWriterAdapter {
	return InputWriterAdapter{sink: sink}
}

// Write enqueues p onto the sink, blocking under backpressure. It never
// partially writes: either all of p is enqueued or an error is returned.
func (a InputWriterAdapter) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	if err := a.sink.Send(data); err != nil {
		return 0, err
	}
	return len(p), nil
}

// session holds the manager's bookkeeping for one spawned terminal.
type session struct {
	id       Id
	term     *Terminal
	input    InputSink
	output   OutputSource
	exit     chan ExitEvent
	exitOnce sync.Once
	group    *asyncutil.Group
}

// Manager spawns and tracks PTY-backed terminal sessions, running the
// reader/writer task pair described in the PTY manager's protocol.
type Manager struct {
	mu       sync.Mutex
	sessions map[Id]*session
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[Id]*session)}
}

// Spawn launches a shell per profile, in cwd, with env appended to the
// process environment, at the given size. It returns the session Id plus
// an InputSink/OutputSource pair wired to the reader/writer tasks.
func (m *Manager) Spawn(profile gridconfig.ShellProfile, cwd string, env []string, cols, rows uint16) (Id, InputSink, OutputSource, error) {
	command := profile.Path
	for _, arg := range profile.Args {
		command += " " + arg
	}
	for k, v := range profile.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	term, err := NewWithSize(command, cwd, env, rows, cols)
	if err != nil {
		return "", nil, nil, fmt.Errorf("ptymgr: spawn failed: %w", err)
	}

	id := Id(uuid.NewString())
	s := &session{
		id:     id,
		term:   term,
		input:  asyncutil.NewQueue[[]byte](outputQueueDepth),
		output: asyncutil.NewQueue[Chunk](outputQueueDepth),
		exit:   make(chan ExitEvent, 1),
		group:  asyncutil.NewGroup(context.Background()),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.startReader(s)
	m.startWriter(s)

	return id, s.input, s.output, nil
}

func (m *Manager) startReader(s *session) {
	s.group.Go("ptymgr-reader", func(ctx context.Context) {
		buf := make([]byte, readChunkSize)
		for {
			n, err := s.term.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if sendErr := s.output.Send(Chunk{Data: chunk}); sendErr != nil {
					return
				}
			}
			if err != nil {
				m.publishExit(s, err)
				return
			}
		}
	})
}

func (m *Manager) startWriter(s *session) {
	s.group.Go("ptymgr-writer", func(ctx context.Context) {
		for {
			data, ok := s.input.Recv()
			if !ok {
				return
			}
			if _, err := s.term.Write(data); err != nil {
				m.publishExit(s, err)
				return
			}
		}
	})
}

// publishExit is called by the reader or writer task the first time it
// observes EOF or an I/O error. A read EOF (or EIO, which is how Linux
// reports a PTY whose child side has closed) from an otherwise-untouched
// terminal means the child exited on its own; publishExit reaps it (via
// Close, which is idempotent) to recover the real exit code. An I/O error
// on an already-closed terminal is expected shutdown noise, not a failure.
func (m *Manager) publishExit(s *session, readWriteErr error) {
	s.exitOnce.Do(func() {
		wasClosed := s.term.IsClosed()
		_ = s.term.Close()
		code, _ := s.term.ExitCode()

		var err error
		if !wasClosed {
			err = readWriteErr
			if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) {
				err = nil
			}
		}
		if err != nil {
			code = -1
		}

		s.exit <- ExitEvent{Code: code, Err: err}
		s.output.Close()
		s.input.Close()
	})
}

// Resize changes the PTY dimensions for an active session.
func (m *Manager) Resize(id Id, cols, rows uint16) error {
	s, ok := m.lookup(id)
	if !ok {
		return ErrNotFound
	}
	return s.term.SetSize(rows, cols)
}

// Close terminates a session through Terminal.Close: SIGTERM to the
// process group, SIGKILL after procutil's default 200ms grace period, then
// up to terminalCloseTimeout (3s) waiting for the child to be reaped before
// a final SIGKILL. It returns the exit code observed by the reader/writer
// pair.
func (m *Manager) Close(id Id) (int, error) {
	s, ok := m.lookup(id)
	if !ok {
		return 0, ErrNotFound
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if err := s.term.Close(); err != nil {
		logging.Warn("ptymgr: close %s: %v", id, err)
	}
	// Closing the group waits for the reader/writer tasks to observe the
	// close and publish their exit event, so s.exit is always ready here.
	s.group.Close()

	ev := <-s.exit
	return ev.Code, ev.Err
}

// Exit returns the channel the session's terminal event is published on.
func (m *Manager) Exit(id Id) (<-chan ExitEvent, bool) {
	s, ok := m.lookup(id)
	if !ok {
		return nil, false
	}
	return s.exit, true
}

func (m *Manager) lookup(id Id) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}
