package relay

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// RunResult is the outcome of running a command in a code workspace.
type RunResult struct {
	// Passed is true when the command exited zero.
	Passed bool
	// Output is combined stdout and stderr.
	Output string
}

// CodeRunner executes a command inside a workspace directory. The tester
// and formatter agents use it for test and format commands; swap in a
// fake for hermetic tests.
type CodeRunner interface {
	Run(ctx context.Context, dir string, command []string) (RunResult, error)
}

// ExecRunner runs commands as local subprocesses with a per-invocation
// timeout. The command runs with dir as its working directory and a
// minimal environment.
type ExecRunner struct {
	// Timeout bounds a single invocation. Zero means 60 seconds.
	Timeout time.Duration
}

// Run implements CodeRunner. A non-zero exit is a failed result, not an
// error; errors are reserved for the command not running at all.
func (r ExecRunner) Run(ctx context.Context, dir string, command []string) (RunResult, error) {
	if len(command) == 0 {
		return RunResult{}, &ErrInput{Field: "command", Message: "command must not be empty"}
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), "HOME=" + dir}
	out, err := cmd.CombinedOutput()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return RunResult{Passed: false, Output: string(out)}, nil
		}
		if ctx.Err() != nil {
			return RunResult{Passed: false, Output: string(out) + "\n[command timed out]"}, nil
		}
		return RunResult{}, &ErrDependency{Name: command[0], Message: err.Error()}
	}
	return RunResult{Passed: true, Output: string(out)}, nil
}

// compile-time check
var _ CodeRunner = ExecRunner{}
