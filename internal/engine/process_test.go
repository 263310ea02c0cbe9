package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func shellEngine(t *testing.T) *ProcessEngine {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return NewProcessEngine(map[string]string{"sh": sh}, nil)
}

func TestProcessEngineSupports(t *testing.T) {
	p := NewProcessEngine(map[string]string{
		"missing": "/nonexistent/bin/ffmpeg-does-not-exist",
		"empty":   "",
	}, nil)

	if p.Supports("missing") {
		t.Error("Expected missing binary to be unsupported")
	}
	if p.Supports("empty") {
		t.Error("Expected unconfigured program to be unsupported")
	}
	if p.Supports(ProgramGifsicle) {
		t.Error("Expected unknown program to be unsupported")
	}
	if p.Name() != "process" {
		t.Errorf("Expected name process, got %s", p.Name())
	}
}

func TestProcessEngineRunsInWorkDir(t *testing.T) {
	p := shellEngine(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "input.txt"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	inv := NewInvoker(p, InvokerConfig{Timeout: 10 * time.Second})
	out, err := inv.Invoke(context.Background(), Invocation{
		Program:    "sh",
		Args:       []string{"-c", "cat input.txt > output.txt; echo done"},
		WorkDir:    dir,
		OutputFile: "output.txt",
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if string(out.Stdout) != "done\n" {
		t.Errorf("Expected stdout captured, got %q", out.Stdout)
	}

	data, err := os.ReadFile(filepath.Join(dir, "output.txt"))
	if err != nil || string(data) != "payload" {
		t.Errorf("Expected relative paths to resolve in work dir, got %q (%v)", data, err)
	}
}

func TestProcessEngineClassifiesExit(t *testing.T) {
	p := shellEngine(t)
	inv := NewInvoker(p, InvokerConfig{Timeout: 10 * time.Second})

	_, err := inv.Invoke(context.Background(), Invocation{
		Program: "sh",
		Args:    []string{"-c", "echo 'moov atom not found' >&2; exit 1"},
		WorkDir: t.TempDir(),
	})
	if KindOf(err) != KindCorruptInput {
		t.Errorf("Expected CorruptInput, got %v", err)
	}
}

func TestProcessEngineTimeoutKills(t *testing.T) {
	p := shellEngine(t)
	inv := NewInvoker(p, InvokerConfig{})

	start := time.Now()
	_, err := inv.Invoke(context.Background(), Invocation{
		Program: "sh",
		Args:    []string{"-c", "sleep 30"},
		WorkDir: t.TempDir(),
		Timeout: 200 * time.Millisecond,
	})
	if KindOf(err) != KindEngineTimeout {
		t.Fatalf("Expected EngineTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Expected process to be killed promptly, took %s", elapsed)
	}
	if p.Active() != 0 {
		t.Errorf("Expected no tracked processes, got %d", p.Active())
	}
}

func TestProcessEngineCapsStderr(t *testing.T) {
	p := shellEngine(t)

	out, err := p.Run(context.Background(), Invocation{
		Program:        "sh",
		Args:           []string{"-c", "i=0; while [ $i -lt 200 ]; do echo line$i >&2; i=$((i+1)); done; exit 3"},
		WorkDir:        t.TempDir(),
		MaxOutputBytes: 64,
	})
	if err != nil {
		t.Fatalf("Expected exit code without error, got %v", err)
	}
	if out.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", out.ExitCode)
	}
	if len(out.Stderr) > 64 || !out.Truncated {
		t.Errorf("Expected stderr capped at 64 bytes, got %d (truncated=%v)", len(out.Stderr), out.Truncated)
	}
}

func TestProcessEngineCleanup(t *testing.T) {
	p := shellEngine(t)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), Invocation{
			Program:        "sh",
			Args:           []string{"-c", "sleep 30"},
			WorkDir:        t.TempDir(),
			MaxOutputBytes: 1024,
		})
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for p.Active() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	p.Cleanup()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Expected Cleanup to kill the running process")
	}
}

func TestProcessEngineUnknownProgram(t *testing.T) {
	p := NewProcessEngine(nil, nil)
	if _, err := p.Run(context.Background(), Invocation{Program: ProgramFFmpeg}); err == nil {
		t.Error("Expected error for unconfigured program")
	}
}
