package transport

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gudfood/realtime/src/types"
)

// ErrPipeClosed is returned by either end of a closed pipe.
var ErrPipeClosed = errors.New("pipe closed")

// Pipe returns two connected in-memory frame transports. Closing either end
// closes both.
func Pipe() (types.FrameConn, types.FrameConn) {
	ab := make(chan *frame.Frame, 64)
	ba := make(chan *frame.Frame, 64)
	shared := &pipeState{done: make(chan struct{})}
	return &pipeConn{in: ba, out: ab, state: shared}, &pipeConn{in: ab, out: ba, state: shared}
}

type pipeState struct {
	done chan struct{}
	once sync.Once
}

type pipeConn struct {
	in    <-chan *frame.Frame
	out   chan<- *frame.Frame
	state *pipeState
}

func (p *pipeConn) ReadFrame() (*frame.Frame, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.state.done:
		return nil, ErrPipeClosed
	}
}

func (p *pipeConn) WriteFrame(f *frame.Frame) error {
	select {
	case <-p.state.done:
		return ErrPipeClosed
	default:
	}
	if f != nil {
		f = f.Clone()
	}
	select {
	case p.out <- f:
		return nil
	case <-p.state.done:
		return ErrPipeClosed
	}
}

func (p *pipeConn) Close() error {
	p.state.once.Do(func() { close(p.state.done) })
	return nil
}

// PipeDialer dials in-memory pipes. The far end of every pipe is handed to
// Serve in its own goroutine. Fail, when set, is consulted before each dial.
type PipeDialer struct {
	Serve func(conn types.FrameConn)
	Fail  func() error

	mu    sync.Mutex
	dials []time.Time
}

func (d *PipeDialer) Dial(ctx context.Context, _ string, _ http.Header) (types.FrameConn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, time.Now())
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Fail != nil {
		if err := d.Fail(); err != nil {
			return nil, err
		}
	}
	local, remote := Pipe()
	go d.Serve(remote)
	return local, nil
}

// Dials returns the number of dial attempts so far.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// DialTimes returns when each dial attempt happened.
func (d *PipeDialer) DialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.dials)
}
