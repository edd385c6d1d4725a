package remote

import (
	"context"
	"fmt"
	"os"
)

// Runner executes commands and transfers files on a provisioning target.
// Implementations exist for SSH targets, the local machine, and in-memory
// fakes for tests.
type Runner interface {
	// Run executes a shell command and returns its stdout and stderr.
	Run(ctx context.Context, cmd string) (stdout, stderr string, err error)
	// RunInput is Run with data supplied on the command's stdin.
	RunInput(ctx context.Context, cmd string, stdin []byte) (stdout, stderr string, err error)
	// ReadFile returns the contents of a file on the target. A missing
	// file is reported as an error satisfying errors.Is(err, fs.ErrNotExist).
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// WriteFile replaces the contents of a file on the target.
	WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error
	Close() error
}

// ConnectionError means the target host was unreachable or rejected
// authentication. It aborts the remaining steps for that host.
type ConnectionError struct {
	Host  string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Host, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// PrivilegeEscalationError means administrative elevation was denied on the
// target host.
type PrivilegeEscalationError struct {
	Host  string
	Cause error
}

func (e *PrivilegeEscalationError) Error() string {
	return fmt.Sprintf("privilege escalation denied on %s: %v", e.Host, e.Cause)
}

func (e *PrivilegeEscalationError) Unwrap() error { return e.Cause }
