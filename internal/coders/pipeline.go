package coders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/coder"
)

const (
	pipelineQueueSize = 64
	pipelineChunkSize = 64 * 1024
	pipelineStopGrace = 2 * time.Second
)

var (
	// ErrPipelineBusy is returned when the pipeline's input queue is full
	ErrPipelineBusy = errors.New("pipeline input queue is full")
	// ErrEmptyCommand is returned for a pipeline without a command
	ErrEmptyCommand = errors.New("pipeline command cannot be empty")
)

// Pipeline runs an external process for the lifetime of a route. Payloads
// passed to Encode or Decode are written to its stdin, and every chunk it
// writes to stdout is forwarded to the Writer from a separate goroutine.
// Chunk boundaries are whatever the process produces.
type Pipeline struct {
	w      coder.Writer
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	mu     sync.RWMutex
	in     chan []byte
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	writeErrs atomic.Uint64
}

// NewPipeline starts argv and wires it to w
func NewPipeline(argv []string, w coder.Writer, logger *slog.Logger) (*Pipeline, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyCommand
	}
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pipeline %q: %w", argv[0], err)
	}

	p := &Pipeline{
		w:      w,
		cmd:    cmd,
		stdin:  stdin,
		logger: logger.With("component", "pipeline", "command", argv[0], "pid", cmd.Process.Pid),
		in:     make(chan []byte, pipelineQueueSize),
	}
	p.wg.Add(2)
	go p.feed()
	go p.drain(stdout)
	return p, nil
}

// PipelineFactory returns a coder.Factory that starts the encoder command on
// the bus→overlay direction and the decoder command on overlay→bus.
func PipelineFactory(encoder, decoder []string, logger *slog.Logger) coder.Factory {
	return func(topic, _ string, w coder.Writer, dir coder.Direction) (coder.Coder, error) {
		argv := encoder
		if dir == coder.Decoding {
			argv = decoder
		}
		p, err := NewPipeline(argv, w, logger)
		if err != nil {
			return nil, fmt.Errorf("%s pipeline for %s: %w", dir, topic, err)
		}
		return p, nil
	}
}

// Encode queues p for the process. It never blocks.
func (p *Pipeline) Encode(b []byte) error {
	return p.push(b)
}

// Decode queues p for the process. It never blocks.
func (p *Pipeline) Decode(b []byte) error {
	return p.push(b)
}

func (p *Pipeline) push(b []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return coder.ErrClosed
	}
	select {
	case p.in <- b:
		return nil
	default:
		return ErrPipelineBusy
	}
}

func (p *Pipeline) feed() {
	defer p.wg.Done()
	defer p.stdin.Close()
	for b := range p.in {
		if _, err := p.stdin.Write(b); err != nil {
			p.logger.Warn("pipeline input failed", "error", err)
			for range p.in {
			}
			return
		}
	}
}

func (p *Pipeline) drain(stdout io.Reader) {
	defer p.wg.Done()
	buf := make([]byte, pipelineChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if werr := p.w.Write(buf[:n]); werr != nil {
				p.writeErrs.Add(1)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				p.logger.Debug("pipeline output ended", "error", err)
			}
			return
		}
	}
}

// WriteErrors returns how many output chunks the Writer rejected
func (p *Pipeline) WriteErrors() uint64 {
	return p.writeErrs.Load()
}

// Close ends the process input and waits for it to exit, killing it after a
// grace period. It is safe to call multiple times.
func (p *Pipeline) Close() error {
	var err error
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.in)
		p.mu.Unlock()

		done := make(chan error, 1)
		go func() {
			p.wg.Wait()
			done <- p.cmd.Wait()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), pipelineStopGrace)
		defer cancel()
		select {
		case werr := <-done:
			var exitErr *exec.ExitError
			if werr != nil && !errors.As(werr, &exitErr) {
				err = werr
			}
		case <-ctx.Done():
			_ = p.cmd.Process.Kill()
			<-done
		}
	})
	return err
}

var _ coder.Coder = (*Pipeline)(nil)
