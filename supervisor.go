package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errAttemptFailed = fmt.Errorf("attempt failed")

var firstWordPattern = regexp.MustCompile(`\w+`)

// RunOptions carries the per-job parameters the Process Supervisor needs;
// it is the Go-native restatement of run(cmd, name, startTime, skip, ...).
type RunOptions struct {
	Name         string
	StartTime    time.Time
	Skip         bool
	Timeout      time.Duration
	IgnoreStatus bool
	Background   bool
	Retries      int
	Interval     time.Duration
	Color        string
}

// Supervisor spawns and supervises child processes on behalf of the
// scheduler: one per attempt, streamed, output-idle-timed-out, retried.
type Supervisor struct {
	tmpDir      string
	shell       string
	environment map[string]string

	namesMu    sync.Mutex
	nameCounts map[string]int

	procsMu sync.Mutex
	procs   map[*exec.Cmd]struct{}

	outputMu sync.Mutex
}

func NewSupervisor(tmpDir, shell string, environment map[string]string) *Supervisor {
	return &Supervisor{
		tmpDir:      tmpDir,
		shell:       shell,
		environment: environment,
		nameCounts:  make(map[string]int),
		procs:       make(map[*exec.Cmd]struct{}),
	}
}

func (s *Supervisor) env() []string {
	env := os.Environ()
	for k, v := range s.environment {
		env = append(env, k+"="+v)
	}
	return env
}

// createName composes the log-file base name: the declared name if any,
// else the command's first word run, suffixed _k on collisions using a
// counter shared across every job this Supervisor runs.
func (s *Supervisor) createName(name, text string) string {
	if name != "" {
		return name
	}
	base := firstWordPattern.FindString(text)
	if base == "" {
		base = "cmd"
	}
	s.namesMu.Lock()
	defer s.namesMu.Unlock()
	if n, ok := s.nameCounts[base]; ok {
		n++
		s.nameCounts[base] = n
		return fmt.Sprintf("%s_%d", base, n)
	}
	s.nameCounts[base] = 0
	return base
}

func (s *Supervisor) registerProc(cmd *exec.Cmd) {
	s.procsMu.Lock()
	s.procs[cmd] = struct{}{}
	s.procsMu.Unlock()
}

func (s *Supervisor) unregisterProc(cmd *exec.Cmd) {
	s.procsMu.Lock()
	delete(s.procs, cmd)
	s.procsMu.Unlock()
}

// KillAllProcesses sends a kill to every currently live child.
func (s *Supervisor) KillAllProcesses() {
	s.procsMu.Lock()
	defer s.procsMu.Unlock()
	for cmd := range s.procs {
		_ = killProcessGroup(cmd)
	}
}

// Run executes cmd, retrying on failure per opts, and returns whether the
// final attempt passed.
func (s *Supervisor) Run(ctx context.Context, cmd Command, opts RunOptions) bool {
	if opts.Skip {
		s.printBanner(opts.Color, commandPrefix(opts.Name), "Skipping", cmd.Text)
		return true
	}

	var passed bool
	var lastPrefix string
	attempt := 0

	operation := func() error {
		p, prefix, terminated := s.runAttempt(ctx, cmd, opts, attempt)
		passed = p
		lastPrefix = prefix
		attempt++
		if passed {
			return nil
		}
		if terminated {
			return backoff.Permanent(errAttemptFailed)
		}
		return errAttemptFailed
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.Interval), uint64(opts.Retries)),
		ctx,
	)
	notify := func(err error, d time.Duration) {
		s.printLine(opts.Color, lastPrefix, fmt.Sprintf("Retrying after %.0fs", opts.Interval.Seconds()))
	}
	_ = backoff.RetryNotify(operation, policy, notify)

	elapsed := time.Since(opts.StartTime)
	terminated := ctx.Err() != nil
	s.printResult(opts, lastPrefix, passed, terminated, elapsed)
	return passed
}

func commandPrefix(name string) string {
	return name
}

// runAttempt spawns, streams, and waits for one attempt. It returns whether
// it passed, the prefix used for banners, and whether it ended because the
// run is being torn down.
func (s *Supervisor) runAttempt(ctx context.Context, cmd Command, opts RunOptions, attempt int) (passed bool, prefix string, terminated bool) {
	commandName := s.createName(opts.Name, cmd.Text)
	stdoutPath := filepath.Join(s.tmpDir, fmt.Sprintf("%s_%d.stdout", commandName, attempt))
	stderrPath := filepath.Join(s.tmpDir, fmt.Sprintf("%s_%d.stderr", commandName, attempt))

	stdoutWriter, err := os.Create(stdoutPath)
	if err != nil {
		return false, opts.Name, false
	}
	defer stdoutWriter.Close()
	stderrWriter, err := os.Create(stderrPath)
	if err != nil {
		return false, opts.Name, false
	}
	defer stderrWriter.Close()

	stdoutFile, err := os.Open(stdoutPath)
	if err != nil {
		return false, opts.Name, false
	}
	defer stdoutFile.Close()
	stderrFile, err := os.Open(stderrPath)
	if err != nil {
		return false, opts.Name, false
	}
	defer stderrFile.Close()

	shCmd := exec.Command(s.shell, "-c", cmd.Text)
	shCmd.Stdout = stdoutWriter
	shCmd.Stderr = stderrWriter
	shCmd.Env = s.env()
	setpgid(shCmd)

	if err := shCmd.Start(); err != nil {
		s.printLine(opts.Color, commandPrefix(opts.Name), fmt.Sprintf("failed to start: %v", err))
		return false, opts.Name, false
	}
	s.registerProc(shCmd)
	defer s.unregisterProc(shCmd)

	prefix = opts.Name
	if prefix == "" {
		prefix = strconv.Itoa(shCmd.Process.Pid)
	}

	banner := "Running"
	if attempt > 0 {
		banner = fmt.Sprintf("Retrying (%d)", attempt)
	}
	s.printBanner(opts.Color, prefix, banner, cmd.Text)

	stdoutReader := bufio.NewReader(stdoutFile)
	stderrReader := bufio.NewReader(stderrFile)

	lastOutput := time.Now()
	done := make(chan error, 1)
	go func() { done <- shCmd.Wait() }()

	ticker := time.NewTicker(75 * time.Millisecond)
	defer ticker.Stop()

	var waitErr error
	killedForTimeout := false
	ctxDone := ctx.Done()
loop:
	for {
		select {
		case waitErr = <-done:
			break loop
		case <-ctxDone:
			_ = killProcessGroup(shCmd)
			ctxDone = nil
		case <-ticker.C:
			saw := s.pumpOutput(stdoutReader, stderrReader, prefix, opts.Color)
			now := time.Now()
			if !opts.Background && opts.Timeout > 0 && now.Sub(lastOutput) > opts.Timeout {
				_ = killProcessGroup(shCmd)
				killedForTimeout = true
				s.printTimeout(prefix, opts.Color, opts.Timeout)
			} else if saw {
				lastOutput = now
			}
		}
	}
	s.pumpOutput(stdoutReader, stderrReader, prefix, opts.Color)

	passed = waitErr == nil
	terminated = killedForTimeout == false && ctx.Err() != nil && !passed
	return passed, prefix, terminated
}

func (s *Supervisor) pumpOutput(stdoutR, stderrR *bufio.Reader, prefix, colorName string) bool {
	sawOut := s.drainLines(stdoutR, prefix+"| ", colorName)
	sawErr := s.drainLines(stderrR, prefix+": ", colorName)
	return sawOut || sawErr
}

func (s *Supervisor) drainLines(r *bufio.Reader, prefix, colorName string) bool {
	saw := false
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			saw = true
			s.writeLocked(sprintColor(colorName, false, prefix+line))
		}
		if err != nil {
			break
		}
	}
	return saw
}

func (s *Supervisor) writeLocked(line string) {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	retryWrite(os.Stdout, line)
}

// retryWrite tolerates transient terminal I/O failures: spurious write
// errors are retried a bounded number of times before the line is dropped.
func retryWrite(w io.Writer, s string) {
	for i := 0; i < 100; i++ {
		if _, err := io.WriteString(w, s); err == nil {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (s *Supervisor) printBanner(colorName, prefix, verb, text string) {
	lines := strings.Split(text, "\n")
	message := verb + ": "
	var rendered []string
	if len(lines) > 1 {
		rendered = append(rendered, message)
		rendered = append(rendered, lines...)
		rendered = append(rendered, "---")
	} else {
		rendered = []string{message + lines[0]}
	}
	for _, l := range rendered {
		s.writeLocked(sprintColor(colorName, false, fmt.Sprintf("%s| %s\n", prefix, l)))
	}
}

func (s *Supervisor) printLine(colorName, prefix, text string) {
	s.writeLocked(sprintColor(colorName, false, fmt.Sprintf("%s| %s\n", prefix, text)))
}

func (s *Supervisor) printTimeout(prefix, colorName string, timeout time.Duration) {
	s.writeLocked(sprintColor(colorName, true, fmt.Sprintf("%s! OUTPUT TIMEOUT (%.1fs)\n", prefix, timeout.Seconds())))
}

func (s *Supervisor) printResult(opts RunOptions, prefix string, passed, terminated bool, elapsed time.Duration) {
	var message string
	switch {
	case passed:
		message = "Done"
	case terminated:
		message = "Terminated"
	case opts.IgnoreStatus:
		message = "Failed"
	default:
		message = "FAILED"
	}
	ignoredNote := ""
	if !passed && opts.IgnoreStatus {
		ignoredNote = "(ignored) "
	}
	bold := !passed
	s.writeLocked(sprintColor(opts.Color, bold, fmt.Sprintf("%s| %s", prefix, message)))
	s.writeLocked(sprintColor(opts.Color, false, fmt.Sprintf(" %s(%.1fs)\n", ignoredNote, elapsed.Seconds())))
}
