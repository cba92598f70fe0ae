package main

import (
	"testing"
	"time"
)

func TestRunController_MainAndPostPhases(t *testing.T) {
	rc := &RunController{
		Shell:         "/bin/bash",
		RetryInterval: time.Second,
		OutputTimeout: 5 * time.Second,
		TmpDir:        t.TempDir(),
		Logger:        newLogger(SeverityError),
	}
	doc := &Document{
		Main: []any{"true", "true"},
		Post: []any{"true"},
	}

	results := rc.Run(doc)
	if !results.Passed() {
		t.Errorf("expected a fully passing run, got failed=%v interrupt=%v", results.Failed, results.Interrupt)
	}
}

func TestRunController_ReportsFailures(t *testing.T) {
	rc := &RunController{
		Shell:         "/bin/bash",
		RetryInterval: time.Second,
		OutputTimeout: 5 * time.Second,
		TmpDir:        t.TempDir(),
		Logger:        newLogger(SeverityError),
	}
	doc := &Document{
		Main: []any{"true", "false"},
	}

	results := rc.Run(doc)
	if results.Passed() {
		t.Fatal("expected a run containing a failing command to be reported as failed")
	}
	if len(results.Failed) != 1 || results.Failed[0].Text != "false" {
		t.Errorf("got failed=%v", results.Failed)
	}
}

func TestRunController_GlobalTimeoutInterrupts(t *testing.T) {
	rc := &RunController{
		Shell:         "/bin/bash",
		Timeout:       50 * time.Millisecond,
		RetryInterval: time.Second,
		OutputTimeout: 5 * time.Second,
		TmpDir:        t.TempDir(),
		Logger:        newLogger(SeverityError),
	}
	doc := &Document{
		Main: []any{"sleep 5"},
	}

	start := time.Now()
	results := rc.Run(doc)
	if time.Since(start) > 2*time.Second {
		t.Fatal("global timeout did not cut the run short")
	}
	if !results.Interrupt {
		t.Error("expected Interrupt to be set after the global deadline fires")
	}
}

func TestRunController_AbandonedDependencyDoesNotHang(t *testing.T) {
	rc := &RunController{
		Shell:         "/bin/bash",
		RetryInterval: time.Second,
		OutputTimeout: 5 * time.Second,
		TmpDir:        t.TempDir(),
		Logger:        newLogger(SeverityError),
	}
	// "waiter" depends on "a", but "a" sits after a synchronous command that
	// fails, so stop-on-first-failure returns before "a" is ever scheduled.
	doc := &Document{
		Main: []any{
			map[string]any{"true": map[string]any{"name": "waiter", "depends_on": "a"}},
			"false",
			map[string]any{"true": map[string]any{"name": "a"}},
		},
	}

	done := make(chan RunnerResults, 1)
	go func() { done <- rc.Run(doc) }()

	select {
	case results := <-done:
		if results.Passed() {
			t.Fatal("expected the run to be reported as failed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run hung: a job waiting on a dependency that is never scheduled must not block forever")
	}
}

func TestRunController_EnvironmentOverlay(t *testing.T) {
	rc := &RunController{
		Shell:         "/bin/bash",
		RetryInterval: time.Second,
		OutputTimeout: 5 * time.Second,
		TmpDir:        t.TempDir(),
		Logger:        newLogger(SeverityError),
	}
	doc := &Document{
		Environment: map[string]string{"GREETING": "hello"},
		Main:        []any{`test "$GREETING" = hello`},
	}

	results := rc.Run(doc)
	if !results.Passed() {
		t.Errorf("expected the environment overlay to reach the child process, failed=%v", results.Failed)
	}
}
