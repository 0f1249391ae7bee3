package dictation

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// LineEngine treats every line read from r as a final recognition result.
// Done is closed once r is exhausted.
type LineEngine struct {
	Listener Listener

	scanner *bufio.Scanner
	once    sync.Once
	done    chan struct{}
}

func NewLineEngine(r io.Reader) *LineEngine {
	return &LineEngine{scanner: bufio.NewScanner(r), done: make(chan struct{})}
}

func (e *LineEngine) Start(context.Context) error {
	e.once.Do(func() { go e.read() })
	return nil
}

func (e *LineEngine) Stop() error {
	e.Listener.End(context.Background())
	return nil
}

func (e *LineEngine) Done() <-chan struct{} {
	return e.done
}

func (e *LineEngine) read() {
	defer close(e.done)
	for e.scanner.Scan() {
		e.Listener.Result(e.scanner.Text(), true)
	}
	if err := e.scanner.Err(); err != nil {
		e.Listener.Error(err)
	}
}
