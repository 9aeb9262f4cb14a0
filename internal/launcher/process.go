package launcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ─── Subprocess Spawner ─────────────────────────────────────────────────────
// Every general runs as a child process of the launcher:
//
//	<exe> peer --id N --primary P --host H --base-port B
//
// The child loads the same config file, so logging and timeouts match.

// Process is a running general.
type Process interface {
	ID() int
	// Exited is closed once the general is gone.
	Exited() <-chan struct{}
	// Err describes why the general exited early, if it did.
	Err() error
	Stop() error
}

// Spawner starts generals.
type Spawner interface {
	Spawn(ctx context.Context, id, primary int) (Process, error)
}

// ExecSpawner starts each general as `<Exe> peer ...`.
type ExecSpawner struct {
	Exe      string
	Host     string
	BasePort int
	// ExtraArgs are appended to every peer command line.
	ExtraArgs []string
}

// NewExecSpawner spawns copies of the running executable.
func NewExecSpawner(host string, basePort int, extra ...string) (*ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &ExecSpawner{Exe: exe, Host: host, BasePort: basePort, ExtraArgs: extra}, nil
}

// Spawn starts the general and returns without waiting for readiness.
func (s *ExecSpawner) Spawn(_ context.Context, id, primary int) (Process, error) {
	args := []string{
		"peer",
		"--id", strconv.Itoa(id),
		"--primary", strconv.Itoa(primary),
		"--host", s.Host,
		"--base-port", strconv.Itoa(s.BasePort),
	}
	args = append(args, s.ExtraArgs...)

	// Capture stderr in a ring buffer for diagnostics
	stderrBuf := &limitedBuffer{max: 4096}

	cmd := exec.Command(s.Exe, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderrBuf
	configureProcess(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start general %d: %w", id, err)
	}

	p := &execProcess{id: id, cmd: cmd, stderr: stderrBuf, exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.exited)
	}()
	return p, nil
}

type execProcess struct {
	id     int
	cmd    *exec.Cmd
	stderr *limitedBuffer
	exited chan struct{}

	mu       sync.Mutex
	waitErr  error
	stopping bool
}

func (p *execProcess) ID() int { return p.id }

func (p *execProcess) Exited() <-chan struct{} { return p.exited }

func (p *execProcess) Err() error {
	select {
	case <-p.exited:
	default:
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return nil
	}
	out := strings.TrimSpace(p.stderr.String())
	if out != "" {
		return fmt.Errorf("general %d exited (%v): %s", p.id, p.waitErr, lastLines(out, 5))
	}
	return fmt.Errorf("general %d exited (%v)", p.id, p.waitErr)
}

// Stop asks the general to shut down and kills it if it does not exit
// within a few seconds.
func (p *execProcess) Stop() error {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := terminate(p.cmd.Process); err != nil {
		return p.cmd.Process.Kill()
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(5 * time.Second):
		// Process didn't exit, force it
		return p.cmd.Process.Kill()
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// limitedBuffer keeps only the last max bytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.buf.Write(p)
	if b.buf.Len() > b.max {
		data := b.buf.Bytes()
		b.buf.Reset()
		b.buf.Write(data[len(data)-b.max:])
	}
	return n, err
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
