package extraction

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Process is one running extractor child.
type Process interface {
	// WriteLine sends one request line. A newline is appended.
	WriteLine(line string) error

	// ReadLine blocks for the next output line, without its newline.
	ReadLine() (string, error)

	// Exited reports whether the child has terminated.
	Exited() bool

	// Kill terminates the child. Safe to call more than once.
	Kill() error
}

// Launcher starts an extractor process.
type Launcher func(cfg Config) (Process, error)

// execProcess is a Process backed by os/exec.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	exited chan struct{}
	once   sync.Once
}

// ExecLauncher starts cfg.Command with pipes on stdin and stdout.
// Stderr is discarded.
func ExecLauncher(cfg Config) (Process, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("no extractor command configured")
	}

	cmd := exec.CommandContext(context.Background(), cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Command[0], err)
	}

	p := &execProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 64*1024),
		exited: make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func (p *execProcess) WriteLine(line string) error {
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (p *execProcess) ReadLine() (string, error) {
	line, err := p.stdout.ReadString('\n')
	if err != nil {
		if line != "" && err == io.EOF {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", fmt.Errorf("read response: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *execProcess) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *execProcess) Kill() error {
	var err error
	p.once.Do(func() {
		_ = p.stdin.Close()
		if !p.Exited() && p.cmd.Process != nil {
			err = p.cmd.Process.Kill()
		}
	})
	return err
}
