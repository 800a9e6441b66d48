package spawner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Process is one managed bot process
type Process struct {
	ID      string
	User    string
	Command string
	Args    []string
	Env     map[string]string

	cmd       *exec.Cmd
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *log.Logger
	startTime time.Time
	mu        sync.Mutex
	done      chan struct{}
	exitErr   error
}

// NewProcess prepares a process; it does not start it
func NewProcess(ctx context.Context, command string, args []string, env map[string]string, logger *log.Logger) *Process {
	procCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()[:8]

	return &Process{
		ID:      id,
		User:    env[EnvUser],
		Command: command,
		Args:    args,
		Env:     env,
		ctx:     procCtx,
		cancel:  cancel,
		logger:  logger.With("process", id),
		done:    make(chan struct{}),
	}
}

// Start launches the process with the parent environment plus Env
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return errors.New("process already started")
	}

	p.cmd = exec.CommandContext(p.ctx, p.Command, p.Args...)
	p.cmd.Env = os.Environ()
	for k, v := range p.Env {
		p.cmd.Env = append(p.cmd.Env, k+"="+v)
	}
	p.cmd.Cancel = func() error { return p.cmd.Process.Signal(os.Interrupt) }
	p.cmd.WaitDelay = time.Second

	p.cmd.Stdout = &lineLogger{log: func(line string) { p.logger.Debug(line, "user", p.User, "stream", "stdout") }}
	p.cmd.Stderr = &lineLogger{log: func(line string) { p.logger.Info(line, "user", p.User) }}

	if err := p.cmd.Start(); err != nil {
		p.cmd = nil
		p.cancel()
		return fmt.Errorf("failed to start process: %w", err)
	}
	p.startTime = time.Now()
	p.logger.Info("Process started", "user", p.User, "command", p.Command, "args", p.Args)

	go p.monitor()
	return nil
}

// Stop interrupts the process and kills it if it has not exited within a
// second
func (p *Process) Stop() error {
	p.mu.Lock()
	started := p.cmd != nil
	p.mu.Unlock()
	if !started {
		return nil
	}

	p.cancel()
	<-p.done
	return nil
}

// Wait blocks until the process exits and returns its exit error
func (p *Process) Wait() error {
	<-p.done
	return p.exitErr
}

// IsAlive reports whether the process is still running
func (p *Process) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Process) monitor() {
	defer close(p.done)
	defer p.cancel()

	err := p.cmd.Wait()
	p.exitErr = err

	duration := time.Since(p.startTime).Round(time.Millisecond)
	switch {
	case err == nil:
		p.logger.Info("Process exited", "user", p.User, "duration", duration)
	case p.ctx.Err() != nil:
		p.logger.Info("Process stopped", "user", p.User, "duration", duration)
	default:
		p.logger.Error("Process failed", "user", p.User, "duration", duration, "error", err)
	}
}

// lineLogger forwards each complete line written to it
type lineLogger struct {
	log func(line string)
	buf []byte
}

func (w *lineLogger) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.buf[:i])); line != "" {
			w.log(line)
		}
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}
