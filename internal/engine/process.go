package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"media-converter/internal/logging"
)

// ProcessEngine runs native executables.
type ProcessEngine struct {
	binaries  map[string]string
	waitDelay time.Duration
	observer  Observer

	processes map[*exec.Cmd]string
	processMu sync.Mutex

	lookupMu sync.Mutex
	lookups  map[string]bool

	log logging.Logger
}

// NewProcessEngine creates an engine that maps program names to executable
// paths, e.g. {"ffmpeg": "/usr/bin/ffmpeg"}.
func NewProcessEngine(binaries map[string]string, observer Observer) *ProcessEngine {
	if observer == nil {
		observer = nopObserver{}
	}
	b := make(map[string]string, len(binaries))
	for k, v := range binaries {
		if v != "" {
			b[k] = v
		}
	}
	return &ProcessEngine{
		binaries:  b,
		waitDelay: 2 * time.Second,
		observer:  observer,
		processes: make(map[*exec.Cmd]string),
		lookups:   make(map[string]bool),
		log:       logging.For("process"),
	}
}

// Name returns "process".
func (p *ProcessEngine) Name() string { return "process" }

// Supports reports whether program is configured and found on disk.
func (p *ProcessEngine) Supports(program string) bool {
	path, ok := p.binaries[program]
	if !ok {
		return false
	}

	p.lookupMu.Lock()
	defer p.lookupMu.Unlock()
	if found, ok := p.lookups[path]; ok {
		return found
	}
	_, err := exec.LookPath(path)
	p.lookups[path] = err == nil
	return err == nil
}

// Version returns the first line of "<program> -version".
func (p *ProcessEngine) Version(ctx context.Context, program string) (string, error) {
	path, ok := p.binaries[program]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrProgramUnavailable, program)
	}
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", program, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Run executes the program with WorkDir as its current directory. The
// process is killed when ctx is done.
func (p *ProcessEngine) Run(ctx context.Context, inv Invocation) (*Output, error) {
	path, ok := p.binaries[inv.Program]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProgramUnavailable, inv.Program)
	}

	cmd := exec.CommandContext(ctx, path, inv.Args...)
	cmd.Dir = inv.WorkDir
	cmd.WaitDelay = p.waitDelay

	stdout := newHeadBuffer(inv.MaxOutputBytes)
	stderr := newTailBuffer(inv.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", inv.Program, err)
	}

	p.track(cmd, inv.WorkDir)
	defer p.untrack(cmd)

	start := time.Now()
	err := cmd.Wait()

	out := &Output{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}

	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("%s: %w", inv.Program, err)
	}
	return out, nil
}

func (p *ProcessEngine) track(cmd *exec.Cmd, workDir string) {
	p.processMu.Lock()
	p.processes[cmd] = workDir
	p.processMu.Unlock()
	p.observer.ObserveProcesses(1)
}

func (p *ProcessEngine) untrack(cmd *exec.Cmd) {
	p.processMu.Lock()
	delete(p.processes, cmd)
	p.processMu.Unlock()
	p.observer.ObserveProcesses(-1)
}

// Active returns the number of running processes.
func (p *ProcessEngine) Active() int {
	p.processMu.Lock()
	defer p.processMu.Unlock()
	return len(p.processes)
}

// Cleanup kills all running processes.
func (p *ProcessEngine) Cleanup() {
	p.processMu.Lock()
	defer p.processMu.Unlock()

	for cmd, dir := range p.processes {
		if cmd.Process != nil {
			p.log.Info("Killing engine process in %s", dir)
			if err := cmd.Process.Kill(); err != nil {
				p.log.Warn("failed to kill engine process in %s: %v", dir, err)
			}
		}
	}
}
