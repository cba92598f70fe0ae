package main

import (
	"context"
	"testing"
	"time"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	return NewSupervisor(t.TempDir(), "/bin/bash", nil)
}

func TestSupervisor_Run_Passes(t *testing.T) {
	sup := newTestSupervisor(t)
	cmd, _ := NewCommand("true")
	opts := RunOptions{Name: "ok", StartTime: time.Now(), Color: "green"}

	if !sup.Run(context.Background(), cmd, opts) {
		t.Error("expected a passing command to report passed")
	}
}

func TestSupervisor_Run_Fails(t *testing.T) {
	sup := newTestSupervisor(t)
	cmd, _ := NewCommand("false")
	opts := RunOptions{Name: "bad", StartTime: time.Now(), Color: "red"}

	if sup.Run(context.Background(), cmd, opts) {
		t.Error("expected a failing command to report failed")
	}
}

func TestSupervisor_Run_Skip(t *testing.T) {
	sup := newTestSupervisor(t)
	cmd, _ := NewCommand("false")
	opts := RunOptions{Name: "skipped", StartTime: time.Now(), Skip: true, Color: "blue"}

	if !sup.Run(context.Background(), cmd, opts) {
		t.Error("a skipped command must report passed regardless of its text")
	}
}

func TestSupervisor_Run_RetriesUntilSuccess(t *testing.T) {
	sup := newTestSupervisor(t)
	marker := t.TempDir() + "/attempt"
	cmd, _ := NewCommand("test -f " + marker + " || { touch " + marker + "; false; }")
	opts := RunOptions{
		Name:      "flaky",
		StartTime: time.Now(),
		Retries:   1,
		Interval:  10 * time.Millisecond,
		Color:     "cyan",
	}

	if !sup.Run(context.Background(), cmd, opts) {
		t.Error("expected the second attempt to pass after the retry")
	}
}

func TestSupervisor_Run_ExhaustsRetries(t *testing.T) {
	sup := newTestSupervisor(t)
	cmd, _ := NewCommand("false")
	opts := RunOptions{
		Name:      "always-fails",
		StartTime: time.Now(),
		Retries:   2,
		Interval:  5 * time.Millisecond,
		Color:     "magenta",
	}

	if sup.Run(context.Background(), cmd, opts) {
		t.Error("expected a command that always fails to report failed after exhausting retries")
	}
}

func TestSupervisor_KillAllProcesses(t *testing.T) {
	sup := newTestSupervisor(t)
	cmd, _ := NewCommand("sleep 5")
	opts := RunOptions{Name: "sleeper", StartTime: time.Now(), Background: true, Color: "yellow"}

	done := make(chan bool, 1)
	go func() { done <- sup.Run(context.Background(), cmd, opts) }()

	time.Sleep(50 * time.Millisecond)
	sup.KillAllProcesses()

	select {
	case passed := <-done:
		if passed {
			t.Error("expected a killed process to report failed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("KillAllProcesses did not terminate the running command in time")
	}
}
