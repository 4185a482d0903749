package modelstore

import (
	"context"
	"os/exec"
	"time"

	"pipemedic/internal/domain"
)

// Build commands must finish within this bound.
const buildTimeout = 5 * time.Minute

// Compile-time check.
var _ domain.Builder = (*CommandBuilder)(nil)

// CommandBuilder runs the owning project's external build/compile step as a
// subprocess. The command is invoked in the project directory with the
// target name appended, and its combined output is captured verbatim.
type CommandBuilder struct {
	dir     string
	command []string
}

// NewCommandBuilder creates a builder running command (program + fixed args)
// in dir. An empty command yields a pass-through builder: every target
// builds successfully. That keeps the fix lifecycle usable for projects
// without a compile step.
func NewCommandBuilder(dir string, command []string) *CommandBuilder {
	return &CommandBuilder{dir: dir, command: command}
}

// Build runs the configured command against the target.
func (b *CommandBuilder) Build(ctx context.Context, target string) (*domain.BuildResult, error) {
	if len(b.command) == 0 {
		return &domain.BuildResult{Success: true, Output: "no build command configured; skipped"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	args := append(append([]string{}, b.command[1:]...), target)
	cmd := exec.CommandContext(ctx, b.command[0], args...)
	cmd.Dir = b.dir

	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, domain.ErrTimeout("build of %s exceeded %s", target, buildTimeout)
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// A non-zero exit is a build verdict, not an execution failure.
			return &domain.BuildResult{Success: false, Output: string(output)}, nil
		}
		return nil, domain.ErrExecution(err, "run build command for %s", target)
	}
	return &domain.BuildResult{Success: true, Output: string(output)}, nil
}
