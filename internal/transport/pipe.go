package transport

import (
	"context"
	"io"
	"sync"

	"github.com/signalsfoundry/simvar-client/internal/wire"
)

const pipeBuffer = 256

type pipeConn struct {
	in     <-chan *wire.Frame
	out    chan<- *wire.Frame
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns the two ends of an in-process connection. Closing either end
// closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan *wire.Frame, pipeBuffer)
	ba := make(chan *wire.Frame, pipeBuffer)
	closed := make(chan struct{})
	once := &sync.Once{}
	a := &pipeConn{in: ba, out: ab, closed: closed, once: once}
	b := &pipeConn{in: ab, out: ba, closed: closed, once: once}
	return a, b
}

func (p *pipeConn) Send(ctx context.Context, f *wire.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	cp := *f
	if f.Raw != nil {
		cp.Raw = append([]byte(nil), f.Raw...)
	}
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.out <- &cp:
		return nil
	}
}

func (p *pipeConn) Recv() (*wire.Frame, error) {
	select {
	case f := <-p.in:
		return f, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// PipeDialer returns a Dialer that hands one end of a fresh pipe to serve
// (typically a peer's ServeConn, run on its own goroutine) and the other end
// to the caller.
func PipeDialer(serve func(Conn)) Dialer {
	return DialerFunc(func(ctx context.Context) (Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		local, remote := Pipe()
		go serve(remote)
		return local, nil
	})
}
