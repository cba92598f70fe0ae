package main

import (
	"testing"
	"time"
)

func TestSharedContext_Register(t *testing.T) {
	t.Run("empty name is always allowed", func(t *testing.T) {
		sc := NewSharedContext()
		if err := sc.Register(""); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if err := sc.Register(""); err != nil {
			t.Errorf("unexpected error on second empty register: %v", err)
		}
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		sc := NewSharedContext()
		if err := sc.Register("build"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := sc.Register("build"); err == nil {
			t.Fatal("expected error on duplicate registration")
		}
	})
}

func TestSharedContext_WaitFor(t *testing.T) {
	sc := NewSharedContext()
	sc.Register("build")
	sc.Register("test")

	done := make(chan []string, 1)
	go func() {
		done <- sc.WaitFor([]string{"build", "test"})
	}()

	select {
	case <-done:
		t.Fatal("WaitFor returned before dependencies finished")
	case <-time.After(20 * time.Millisecond):
	}

	sc.MarkDone("build", true)
	sc.MarkDone("test", false)

	select {
	case failed := <-done:
		if len(failed) != 1 || failed[0] != "test" {
			t.Errorf("got failed=%v, want [test]", failed)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("WaitFor did not return after dependencies completed")
	}
}

func TestSharedContext_Abandon(t *testing.T) {
	t.Run("unblocks a waiter on a name that was never registered", func(t *testing.T) {
		sc := NewSharedContext()

		done := make(chan []string, 1)
		go func() { done <- sc.WaitFor([]string{"a"}) }()

		select {
		case <-done:
			t.Fatal("WaitFor returned before the name was resolved")
		case <-time.After(20 * time.Millisecond):
		}

		sc.Abandon([]string{"a"})

		select {
		case failed := <-done:
			if len(failed) != 1 || failed[0] != "a" {
				t.Errorf("got failed=%v, want [a]", failed)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("WaitFor did not return after the name was abandoned")
		}
	})

	t.Run("does not clobber an already terminal name", func(t *testing.T) {
		sc := NewSharedContext()
		sc.Register("build")
		sc.MarkDone("build", true)

		sc.Abandon([]string{"build"})

		if failed := sc.WaitFor([]string{"build"}); len(failed) != 0 {
			t.Errorf("expected 'build' to remain passed, got failed=%v", failed)
		}
	})
}

func TestSharedContext_ShouldSkip(t *testing.T) {
	t.Run("if and unless are mutually exclusive", func(t *testing.T) {
		sc := NewSharedContext()
		if _, err := sc.ShouldSkip([]string{"a"}, []string{"b"}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("if skips when predicate unset", func(t *testing.T) {
		sc := NewSharedContext()
		skip, err := sc.ShouldSkip([]string{"deployed"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !skip {
			t.Error("expected skip when 'if' predicate is unset")
		}
	})

	t.Run("if runs when predicate set true", func(t *testing.T) {
		sc := NewSharedContext()
		sc.SetPredicates([]string{"deployed"}, true)
		skip, err := sc.ShouldSkip([]string{"deployed"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if skip {
			t.Error("expected no skip when 'if' predicate is true")
		}
	})

	t.Run("unless skips when predicate set true", func(t *testing.T) {
		sc := NewSharedContext()
		sc.SetPredicates([]string{"deployed"}, true)
		skip, err := sc.ShouldSkip(nil, []string{"deployed"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !skip {
			t.Error("expected skip when 'unless' predicate is true")
		}
	})
}
