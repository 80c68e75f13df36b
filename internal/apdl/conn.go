package apdl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/san-kum/vivsim/internal/viv"
)

// Conn carries APDL commands to a solver and returns what it printed.
type Conn interface {
	Exec(cmd string) (string, error)
	Close() error
}

const (
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second

	markerPrefix = "VIVSIM_END_"
)

// Backoff returns base·2^retry capped at one minute.
func Backoff(retry int, base time.Duration) time.Duration {
	if base <= 0 {
		base = baseDelay
	}
	if retry < 0 {
		return base
	}
	if retry > 30 {
		return maxDelay
	}
	d := base * time.Duration(1<<retry)
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}

// Options describe how to start a MAPDL console process.
type Options struct {
	Executable string
	Args       []string
	WorkDir    string
	JobName    string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Process is a MAPDL console process driven over stdin/stdout. Every
// command is followed by a /COM marker; the answer is everything printed up
// to the echoed marker.
type Process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan string
	stderr  bytes.Buffer
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	seq    int
	closed bool
}

// Launch starts the solver, retrying with exponential backoff. It gives up
// with viv.ErrResource once the retries are spent or ctx is done.
func Launch(ctx context.Context, opts Options) (*Process, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}

	var lastErr error
	for retry := 0; retry < opts.Retries; retry++ {
		p, err := start(opts)
		if err == nil {
			opts.Logger.Info("solver started", "exe", opts.Executable, "job", opts.JobName, "attempt", retry+1)
			return p, nil
		}
		lastErr = err
		if retry == opts.Retries-1 {
			break
		}

		delay := Backoff(retry, opts.RetryDelay)
		opts.Logger.Warn("solver launch failed", "exe", opts.Executable, "err", err, "retry", retry, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: launch interrupted: %v", viv.ErrResource, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("%w: launch %s after %d attempts: %v", viv.ErrResource, opts.Executable, opts.Retries, lastErr)
}

func start(opts Options) (*Process, error) {
	args := append([]string(nil), opts.Args...)
	if opts.JobName != "" {
		args = append(args, "-j", opts.JobName)
	}
	cmd := exec.Command(opts.Executable, args...)
	cmd.Dir = opts.WorkDir
	cmd.WaitDelay = 5 * time.Second

	p := &Process{
		cmd:     cmd,
		lines:   make(chan string, 256),
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
	if p.timeout <= 0 {
		p.timeout = 2 * time.Minute
	}
	cmd.Stderr = &p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p.stdin = stdin

	go p.readLoop(stdout)

	if _, err := p.Exec("/NERR,,99999999"); err != nil {
		p.kill()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return p, nil
}

func (p *Process) readLoop(r io.Reader) {
	defer close(p.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
}

// Exec sends one command and waits for its marker. A timeout or a dead
// process closes the connection for good.
func (p *Process) Exec(cmd string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", fmt.Errorf("%w: solver connection closed", viv.ErrResource)
	}

	p.seq++
	marker := fmt.Sprintf("%s%d", markerPrefix, p.seq)
	if _, err := fmt.Fprintf(p.stdin, "%s\n/COM,%s\n", cmd, marker); err != nil {
		return "", fmt.Errorf("%w: write %q: %v", viv.ErrResource, cmd, err)
	}

	var out strings.Builder
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				p.kill()
				return out.String(), fmt.Errorf("%w: solver exited during %q", viv.ErrResource, cmd)
			}
			if strings.Contains(line, marker) {
				return out.String(), nil
			}
			out.WriteString(line)
			out.WriteByte('\n')
		case <-timer.C:
			// A late answer would land in the next command's output.
			p.kill()
			return out.String(), fmt.Errorf("%w: no answer to %q within %s", viv.ErrResource, cmd, p.timeout)
		}
	}
}

// Close asks the solver to exit and kills it if it does not.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	fmt.Fprintln(p.stdin, "/EXIT,NOSAVE")
	p.stdin.Close()
	go p.drain()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			p.logger.Debug("solver exit", "err", err, "stderr", tail(p.stderr.String(), 512))
		}
		return nil
	case <-time.After(p.timeout):
		p.cmd.Process.Kill()
		<-done
		return fmt.Errorf("%w: solver did not exit, killed", viv.ErrResource)
	}
}

func (p *Process) kill() {
	p.closed = true
	p.stdin.Close()
	p.cmd.Process.Kill()
	go p.drain()
	p.cmd.Wait()
}

func (p *Process) drain() {
	for range p.lines {
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Journal writes the command stream to w instead of a solver. *GET queries
// are answered with zero so a full deck can be produced offline.
type Journal struct {
	w      io.Writer
	closed bool
}

func NewJournal(w io.Writer) *Journal { return &Journal{w: w} }

func (j *Journal) Exec(cmd string) (string, error) {
	if j.closed {
		return "", fmt.Errorf("%w: journal closed", viv.ErrResource)
	}
	if _, err := fmt.Fprintln(j.w, cmd); err != nil {
		return "", fmt.Errorf("%w: %v", viv.ErrResource, err)
	}
	if name, ok := getParameter(cmd); ok {
		return fmt.Sprintf(" PARAMETER %s =     0.000000000", name), nil
	}
	return "", nil
}

func (j *Journal) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	_, err := fmt.Fprintln(j.w, "/EXIT,NOSAVE")
	return err
}
