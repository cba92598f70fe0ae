package main

// Job is a mutable runtime wrapper around a Command, owned by the scheduler
// for the job's lifetime.
type Job struct {
	command  Command
	prepared bool
}

func NewJob(cmd Command) *Job {
	return &Job{command: cmd}
}

func (j *Job) Name() string     { return j.command.Features.Name() }
func (j *Job) Background() bool { return j.command.Features.Background() }
func (j *Job) Command() Command { return j.command }

// Prepare registers the job's name (if any) with the shared context. It must
// succeed before the worker is allowed to run.
func (j *Job) Prepare(sc *SharedContext) error {
	if err := sc.Register(j.Name()); err != nil {
		return err
	}
	j.prepared = true
	return nil
}
