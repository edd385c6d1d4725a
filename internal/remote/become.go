package remote

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/pkg/errors"
)

// Become wraps a runner so that every command and file operation runs with
// administrative rights on the target. The connecting account must hold a
// passwordless sudo grant; a password prompt is treated as a denial.
func Become(r Runner, host, becomeUser string) Runner {
	if becomeUser == "" {
		becomeUser = "root"
	}
	return &becomeRunner{r: r, host: host, user: becomeUser}
}

type becomeRunner struct {
	r    Runner
	host string
	user string
}

func (b *becomeRunner) wrap(cmd string) string {
	return fmt.Sprintf("sudo -n -u %s -- sh -c %s", shellescape.Quote(b.user), shellescape.Quote(cmd))
}

// sudoRejected reports whether stderr indicates sudo refused to elevate, as
// opposed to the elevated command itself failing.
func sudoRejected(stderr string) bool {
	return strings.Contains(stderr, "a password is required") ||
		strings.Contains(stderr, "sudo: not found") ||
		strings.Contains(stderr, "is not in the sudoers file")
}

func (b *becomeRunner) classify(stderr string, err error) error {
	if err != nil && sudoRejected(stderr) {
		return &PrivilegeEscalationError{Host: b.host, Cause: err}
	}
	return err
}

func (b *becomeRunner) Run(ctx context.Context, cmd string) (string, string, error) {
	stdout, stderr, err := b.r.Run(ctx, b.wrap(cmd))
	return stdout, stderr, b.classify(stderr, err)
}

func (b *becomeRunner) RunInput(ctx context.Context, cmd string, stdin []byte) (string, string, error) {
	stdout, stderr, err := b.r.RunInput(ctx, b.wrap(cmd), stdin)
	return stdout, stderr, b.classify(stderr, err)
}

func (b *becomeRunner) ReadFile(ctx context.Context, path string) ([]byte, error) {
	stdout, stderr, err := b.r.Run(ctx, b.wrap("cat "+shellescape.Quote(path)))
	if err != nil {
		if perr := b.classify(stderr, err); perr != err {
			return nil, perr
		}
		if strings.Contains(stderr, "No such file or directory") {
			return nil, errors.Wrapf(fs.ErrNotExist, "cat %s", path)
		}
		return nil, errors.Wrapf(err, "failed to read %s: %s", path, strings.TrimSpace(stderr))
	}
	return []byte(stdout), nil
}

func (b *becomeRunner) WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	q := shellescape.Quote(path)
	cmd := fmt.Sprintf("cat > %s && chmod %o %s", q, mode.Perm(), q)
	_, stderr, err := b.r.RunInput(ctx, b.wrap(cmd), data)
	if err != nil {
		if perr := b.classify(stderr, err); perr != err {
			return perr
		}
		return errors.Wrapf(err, "failed to write %s: %s", path, strings.TrimSpace(stderr))
	}
	return nil
}

func (b *becomeRunner) Close() error {
	return b.r.Close()
}
