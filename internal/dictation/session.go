// Package dictation drives a speech recognition engine. The engine stops on
// its own from time to time; while the user is still dictating the session
// restarts it, up to a bounded number of times without hearing anything.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

type State int

const (
	Idle State = iota
	Listening
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrBusy         = errors.New("dictation already in progress")
	ErrRestartLimit = errors.New("recognition engine kept stopping without results")
)

// Engine is the recognition backend. After Start it reports through the
// session's Result, Error and End methods; End follows every Stop.
type Engine interface {
	Start(ctx context.Context) error
	Stop() error
}

// Listener receives engine events.
type Listener interface {
	Result(text string, final bool)
	Error(err error)
	End(ctx context.Context)
}

type Session struct {
	engine      Engine
	maxRestarts int

	mu         sync.Mutex
	state      State
	restarts   int
	transcript strings.Builder
	interim    string
	err        error
}

func New(engine Engine, maxRestarts int) *Session {
	if maxRestarts < 0 {
		maxRestarts = 0
	}
	return &Session{engine: engine, maxRestarts: maxRestarts}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the error that last ended dictation, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.transcript.String())
}

func (s *Session) Interim() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interim
}

// Reset clears the transcript of an idle session.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrBusy
	}
	s.transcript.Reset()
	s.interim = ""
	s.err = nil
	return nil
}

func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = Listening
	s.restarts = 0
	s.err = nil
	s.mu.Unlock()

	if err := s.engine.Start(ctx); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != Listening {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	s.mu.Unlock()
	return s.engine.Stop()
}

// Toggle starts an idle session and stops a listening one.
func (s *Session) Toggle(ctx context.Context) error {
	if s.State() == Idle {
		return s.Start(ctx)
	}
	return s.Stop()
}

func (s *Session) Result(text string, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Listening {
		return
	}
	s.restarts = 0
	if !final {
		s.interim = text
		return
	}
	s.interim = ""
	if text = strings.TrimSpace(text); text != "" {
		s.transcript.WriteString(text)
		s.transcript.WriteString(" ")
	}
}

func (s *Session) Error(err error) {
	log.Printf("dictation: engine error: %v", err)
	s.mu.Lock()
	s.err = err
	listening := s.state == Listening
	if listening {
		s.state = Stopping
	}
	s.mu.Unlock()
	if listening {
		if stopErr := s.engine.Stop(); stopErr != nil {
			log.Printf("dictation: stop after error: %v", stopErr)
		}
	}
}

func (s *Session) End(ctx context.Context) {
	s.mu.Lock()
	switch s.state {
	case Stopping, Idle:
		s.state = Idle
		s.mu.Unlock()
		return
	}
	s.restarts++
	if s.restarts > s.maxRestarts {
		s.state = Idle
		s.err = ErrRestartLimit
		s.mu.Unlock()
		log.Printf("dictation: giving up after %d restarts", s.maxRestarts)
		return
	}
	s.mu.Unlock()

	if err := s.engine.Start(ctx); err != nil {
		s.fail(err)
	}
}

func (s *Session) fail(err error) {
	log.Printf("dictation: engine start: %v", err)
	s.mu.Lock()
	s.state = Idle
	s.err = err
	s.mu.Unlock()
}
