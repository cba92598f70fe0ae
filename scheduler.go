package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

type scheduledJob struct {
	cmd    Command
	result jobResult
}

// Scheduler constructs Jobs, starts their workers, sequences synchronous vs
// asynchronous execution, and aggregates results for one run.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	sc     *SharedContext
	sup    *Supervisor
	colors *ColorPool

	defaultOutputTimeout time.Duration
	defaultRetryInterval time.Duration

	mu       sync.Mutex
	jobs     map[int]*scheduledJob
	nextID   int
	normalWG sync.WaitGroup
	bgWG     sync.WaitGroup
}

func NewScheduler(ctx context.Context, sup *Supervisor, sc *SharedContext, defaultOutputTimeout, defaultRetryInterval time.Duration) *Scheduler {
	runCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:                  runCtx,
		cancel:               cancel,
		sc:                   sc,
		sup:                  sup,
		colors:               NewColorPool(),
		defaultOutputTimeout: defaultOutputTimeout,
		defaultRetryInterval: defaultRetryInterval,
		jobs:                 make(map[int]*scheduledJob),
	}
}

// IsSynchronous reports whether cmd blocks the scheduling cursor: only a
// command that is neither background nor named does; the others run
// asynchronously.
func (sch *Scheduler) IsSynchronous(cmd Command) bool {
	return !cmd.Features.Background() && cmd.Features.Name() == ""
}

// Start creates a Job for cmd, registers it, and launches its worker. It
// blocks until completion only when cmd is synchronous.
func (sch *Scheduler) Start(cmd Command) int {
	sch.mu.Lock()
	jobID := sch.nextID
	sch.nextID++
	sch.jobs[jobID] = &scheduledJob{cmd: cmd, result: resultPending}
	sch.mu.Unlock()

	job := NewJob(cmd)
	if err := job.Prepare(sch.sc); err != nil {
		fmt.Fprintln(os.Stderr, redBold(err.Error()))
		sch.setResult(jobID, false)
		return jobID
	}

	var wg *sync.WaitGroup
	if job.Background() {
		wg = &sch.bgWG
	} else {
		wg = &sch.normalWG
	}
	wg.Add(1)

	done := make(chan struct{})
	go func() {
		defer wg.Done()
		defer close(done)
		sch.runJob(job, jobID)
	}()

	if sch.IsSynchronous(cmd) {
		<-done
	}
	return jobID
}

func (sch *Scheduler) runJob(job *Job, jobID int) {
	features := job.command.Features
	startTime := time.Now()

	failedDeps := sch.sc.WaitFor(features.StringList("depends_on"))
	if len(failedDeps) > 0 {
		fmt.Fprintln(os.Stderr, red(fmt.Sprintf("NOT STARTED: %s", job.command.Text)))
		sch.setResult(jobID, false)
		sch.sc.MarkDone(job.Name(), false)
		return
	}

	skip, err := sch.sc.ShouldSkip(features.StringList("if"), features.StringList("unless"))
	if err != nil {
		fmt.Fprintln(os.Stderr, redBold(err.Error()))
		sch.setResult(jobID, false)
		sch.sc.MarkDone(job.Name(), false)
		return
	}

	setPreds := features.StringList("set")

	colorName, release := sch.colors.Lease()
	defer release()

	timeout := sch.defaultOutputTimeout
	if v, ok := features["timeout"]; ok {
		timeout = time.Duration(toSeconds(v) * float64(time.Second))
	}
	interval := sch.defaultRetryInterval
	if v, ok := features["interval"]; ok {
		interval = time.Duration(toSeconds(v) * float64(time.Second))
	}

	opts := RunOptions{
		Name:         job.Name(),
		StartTime:    startTime,
		Skip:         skip,
		Timeout:      timeout,
		IgnoreStatus: len(setPreds) > 0,
		Background:   job.Background(),
		Retries:      features.Retries(),
		Interval:     interval,
		Color:        colorName,
	}

	passed := sch.sup.Run(sch.ctx, job.command, opts)
	sch.sc.SetPredicates(setPreds, passed)

	// A non-empty `set` causes this command's own pass/fail status to be
	// ignored entirely (spec §3, §7, §8): it only ever drives the predicates
	// it names, and the job itself is never counted as failed.
	recorded := passed || len(setPreds) > 0
	sch.setResult(jobID, recorded)
	sch.sc.MarkDone(job.Name(), recorded)
}

func (sch *Scheduler) setResult(jobID int, passed bool) {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	if passed {
		sch.jobs[jobID].result = resultPassed
	} else {
		sch.jobs[jobID].result = resultFailed
	}
}

func (sch *Scheduler) Result(jobID int) jobResult {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	return sch.jobs[jobID].result
}

// Finish waits for every normal (non-background) worker, unless the context
// is cancelled first, in which case it tears everything down instead.
func (sch *Scheduler) Finish() {
	normalDone := make(chan struct{})
	go func() {
		sch.normalWG.Wait()
		close(normalDone)
	}()
	select {
	case <-normalDone:
	case <-sch.ctx.Done():
		sch.KillAll()
		<-normalDone
	}
}

// KillAll cancels the run, repeatedly kills live children until every
// worker (normal and background) has returned.
func (sch *Scheduler) KillAll() {
	sch.cancel()
	allDone := make(chan struct{})
	go func() {
		sch.normalWG.Wait()
		sch.bgWG.Wait()
		close(allDone)
	}()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-allDone:
			return
		case <-ticker.C:
			sch.sup.KillAllProcesses()
		}
	}
}

// Failures reports Commands whose job terminated failed.
func (sch *Scheduler) Failures() []Command {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	var out []Command
	for id := 0; id < sch.nextID; id++ {
		if j, ok := sch.jobs[id]; ok && j.result == resultFailed {
			out = append(out, j.cmd)
		}
	}
	return out
}

// Running reports Commands whose job never reached a terminal result
// (background jobs still alive at run end).
func (sch *Scheduler) Running() []Command {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	var out []Command
	for id := 0; id < sch.nextID; id++ {
		if j, ok := sch.jobs[id]; ok && j.result == resultPending {
			out = append(out, j.cmd)
		}
	}
	return out
}
