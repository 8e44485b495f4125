// Package procgw implements the process gateway interface of spec.md §6:
// running a local command and capturing its stdout, stderr and exit code,
// used only to enumerate local routing tables when platform APIs are
// insufficient to find a default gateway. Grounded on the teacher's bare
// os/exec usage (e.g. lib/fs/walkfs_test.go's osexec.Command); the teacher
// does not pull in a process-management library for this, so neither do
// we (see DESIGN.md).
package procgw

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/HD-CIPL/portmapper/internal/logging"
)

var logger = logging.New("portmapper/procgw")

// Result is the outcome of Run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes name with args, waiting for it to exit or ctx to be
// cancelled. A non-zero exit code is not itself an error: callers that
// care must check Result.ExitCode. Only a failure to start the process,
// or cancellation, is returned as an error.
func Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			exitCode = exitErr.ExitCode()
		} else {
			logger.Debugf("failed to run %s: %v", name, err)
			return Result{}, err
		}
	}

	logger.Debugf("ran %s %v, exit code %d", name, args, exitCode)
	return Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}
