package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ProcessLauncher runs the interpreter as a child process.
type ProcessLauncher struct {
	// ScriptDirs are prepended to the language search path.
	ScriptDirs []string
	// Dir is the working directory. Empty means the current one.
	Dir string
	// Env holds extra environment variables.
	Env map[string]string
}

func (l *ProcessLauncher) Name() string {
	return "process"
}

func (l *ProcessLauncher) Launch(ctx context.Context, lang Language, out Output) (Process, error) {
	args := lang.Args(lang.Bootstrap())
	if len(args) == 0 {
		return nil, errors.New("language returned an empty command line")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = l.Dir
	cmd.Stdout = out.Stdout
	cmd.Stderr = out.Stderr
	cmd.Env = l.environ(lang.SearchPathEnv())

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}
	return &osProcess{cmd: cmd, stdin: stdin}, nil
}

func (l *ProcessLauncher) environ(searchVar string) []string {
	env := os.Environ()

	if searchVar != "" && len(l.ScriptDirs) > 0 {
		paths := make([]string, 0, len(l.ScriptDirs)+1)
		for _, dir := range l.ScriptDirs {
			if abs, err := filepath.Abs(dir); err == nil {
				dir = abs
			}
			paths = append(paths, dir)
		}
		if existing := os.Getenv(searchVar); existing != "" {
			paths = append(paths, existing)
		}
		env = append(env, searchVar+"="+strings.Join(paths, string(os.PathListSeparator)))
	}

	for k, v := range l.Env {
		env = append(env, k+"="+v)
	}
	return env
}

type osProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	once  sync.Once
}

func (p *osProcess) Stdin() io.WriteCloser {
	return p.stdin
}

func (p *osProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *osProcess) Kill() error {
	var err error
	p.once.Do(func() {
		p.stdin.Close()
		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = killErr
		}
	})
	return err
}

// PID returns the child's process id.
func (p *osProcess) PID() int {
	return p.cmd.Process.Pid
}
