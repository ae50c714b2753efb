package idb

import (
	"context"
	"os"
	"os/exec"
)

// Process is a long-running idb command such as record-video.
type Process interface {
	// Interrupt asks the process to finish and flush its output
	Interrupt() error
	Wait() error
}

// Starter launches a long-running command.
type Starter interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

type execStarter struct{}

func (execStarter) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Interrupt() error {
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}
