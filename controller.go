package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// RunnerResults summarises one controller Run: the commands that failed, the
// background commands still alive when the run ended, and whether a signal
// or the global deadline cut the run short.
type RunnerResults struct {
	Failed    []Command
	Running   []Command
	Interrupt bool
}

func (r RunnerResults) Passed() bool {
	return len(r.Failed) == 0 && !r.Interrupt
}

// FailureReport selects the single command the final disposition names, per
// §4.6: the first failure, else (on interrupt with nothing failed outright)
// the last command still running, else nil for a clean pass.
func (r RunnerResults) FailureReport() *Command {
	if len(r.Failed) > 0 {
		return &r.Failed[0]
	}
	if r.Interrupt && len(r.Running) > 0 {
		return &r.Running[len(r.Running)-1]
	}
	return nil
}

// RunController is the top-level orchestrator: it loads a document, wires a
// Supervisor and SharedContext, runs the main phase then the post phase, and
// enforces the global deadline and signal handling.
type RunController struct {
	Shell         string
	Timeout       time.Duration
	RetryInterval time.Duration
	OutputTimeout time.Duration
	TmpDir        string
	Logger        *Logger
}

// Run executes doc's main phase, followed by its post phase whether or not
// main's commands passed, honouring the configured global deadline and OS
// termination signals. If main's commands cannot be expanded, neither phase
// runs.
func (rc *RunController) Run(doc *Document) RunnerResults {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var interrupted atomic.Bool
	go func() {
		select {
		case <-sigCh:
			interrupted.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	if rc.Timeout > 0 {
		timer := time.AfterFunc(rc.Timeout, func() {
			interrupted.Store(true)
			rc.Logger.log(SeverityWarn, OpWarn, "global timeout of %s reached, terminating", rc.Timeout)
			cancel()
		})
		defer timer.Stop()
	}

	env := expandEnvironment(doc.Environment)
	sup := NewSupervisor(rc.TmpDir, rc.Shell, env)
	sc := NewSharedContext()
	sch := NewScheduler(ctx, sup, sc, rc.OutputTimeout, rc.RetryInterval)

	mainCommands, err := GenerateCommands(doc.Main)
	if err != nil {
		rc.Logger.log(SeverityError, OpError, "main: %v", err)
		return RunnerResults{Failed: []Command{{Text: err.Error()}}}
	}
	rc.runPhase(sch, mainCommands)
	sch.Finish()

	results := RunnerResults{
		Failed:    sch.Failures(),
		Running:   sch.Running(),
		Interrupt: interrupted.Load(),
	}

	postSch := NewScheduler(context.Background(), sup, sc, rc.OutputTimeout, rc.RetryInterval)
	postCommands, err := GenerateCommands(doc.Post)
	if err != nil {
		rc.Logger.log(SeverityError, OpError, "post: %v", err)
	} else {
		rc.runPhase(postSch, postCommands)
		postSch.Finish()
	}

	results.Failed = append(results.Failed, postSch.Failures()...)
	results.Running = append(results.Running, postSch.Running()...)
	results.Interrupt = interrupted.Load()

	// Cancel each scheduler's context before returning so any command still
	// alive (a background job neither phase waited on) is torn down through
	// the same path retries are cut off by, rather than merely killed at the
	// process level while its Supervisor.Run loop keeps believing it can retry.
	sch.KillAll()
	postSch.KillAll()
	return results
}

// runPhase issues every command of a phase in document order. A synchronous
// command that fails stops the scheduling cursor from feeding further
// commands; already-started background workers are left running and are
// cleaned up during teardown.
//
// Any command left un-started when the cursor stops early never registers
// its name with the shared context. A job already running that declared a
// depends_on on that name would otherwise wait forever on a name that will
// now never arrive, so its name (if any) is abandoned as failed here to
// unblock such waiters.
func (rc *RunController) runPhase(sch *Scheduler, commands []Command) {
	for i, cmd := range commands {
		select {
		case <-sch.ctx.Done():
			sch.sc.Abandon(namesOf(commands[i:]))
			return
		default:
		}
		jobID := sch.Start(cmd)
		if sch.IsSynchronous(cmd) && sch.Result(jobID) == resultFailed {
			sch.sc.Abandon(namesOf(commands[i+1:]))
			return
		}
	}
}

// namesOf collects the declared names of a Command slice, skipping unnamed
// commands (nothing can depend_on a name that was never declared).
func namesOf(commands []Command) []string {
	var out []string
	for _, c := range commands {
		if n := c.Features.Name(); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// PrintSummary reports the final disposition per §6: a red "FAILED: …" line
// on stderr naming the first failure (or, on an interrupt with nothing
// outright failed, the last command still running), plus a red "KEYBOARD
// INTERRUPT" line on stderr when a signal cut the run short; green on a
// clean pass.
func (rc *RunController) PrintSummary(results RunnerResults) {
	if results.Passed() {
		fmt.Println(green("All commands passed"))
		return
	}
	if report := results.FailureReport(); report != nil {
		fmt.Fprintln(os.Stderr, redBold(fmt.Sprintf("FAILED: %s", report.Text)))
	}
	if results.Interrupt {
		fmt.Fprintln(os.Stderr, redBold("KEYBOARD INTERRUPT"))
	}
}
