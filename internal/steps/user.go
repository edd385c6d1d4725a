package steps

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/pkg/errors"

	"github.com/eniac111/hostprep/internal/remote"
)

// CIUserComment is the account description given to the provisioned user.
const CIUserComment = "OpenShift CI User"

// DefaultSudoersPath is where the sudo grant is written.
const DefaultSudoersPath = "/etc/sudoers"

// KeySource supplies the public key material to install at provisioning
// time. The instance metadata client implements it.
type KeySource interface {
	FetchKey(ctx context.Context) ([]byte, error)
}

// UserProvision returns the ordered step list that converges a host on a
// ready CI user. The order is load-bearing: the account must exist before
// anything can be owned by it, and the .ssh directory before the key file
// written inside it.
func UserProvision(user string, keys KeySource) []Step {
	home := "/home/" + user
	return []Step{
		EnsureUser{User: user},
		GrantSudo{User: user},
		EnsureDirectory{Path: home, Owner: user},
		EnsureDirectory{Path: home + "/.ssh", Owner: user},
		InstallAuthorizedKey{User: user, Keys: keys},
	}
}

// EnsureUser creates the CI system account if it does not exist.
type EnsureUser struct {
	User string
}

func (s EnsureUser) Name() string { return "ensure-user" }

func (s EnsureUser) Run(ctx context.Context, r remote.Runner) (bool, error) {
	if _, _, err := r.Run(ctx, "id -u "+shellescape.Quote(s.User)); err == nil {
		return false, nil
	}
	cmd := fmt.Sprintf("useradd --comment %s --create-home %s",
		shellescape.Quote(CIUserComment), shellescape.Quote(s.User))
	if _, stderr, err := r.Run(ctx, cmd); err != nil {
		return false, errors.Wrapf(err, "useradd: %s", strings.TrimSpace(stderr))
	}
	return true, nil
}

// GrantSudo appends a passwordless sudo grant for the user unless the
// sudoers file already carries a line for it, in which case the file is
// left byte-for-byte untouched.
type GrantSudo struct {
	User string
	Path string // defaults to DefaultSudoersPath
}

func (s GrantSudo) Name() string { return "grant-sudo" }

func (s GrantSudo) Run(ctx context.Context, r remote.Runner) (bool, error) {
	sudoersPath := s.Path
	if sudoersPath == "" {
		sudoersPath = DefaultSudoersPath
	}

	content, err := r.ReadFile(ctx, sudoersPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	present := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(s.User) + `(?:\s|$)`)
	if present.Match(content) {
		return false, nil
	}

	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, '\n')
	}
	content = append(content, fmt.Sprintf("%s  ALL=(ALL)  NOPASSWD: ALL\n", s.User)...)
	if err := r.WriteFile(ctx, sudoersPath, content, 0o440); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureDirectory creates a directory owned by the user when it is missing.
// An existing directory with the right owner is left alone; a wrong owner
// is corrected, since an .ssh directory not owned by the user breaks sshd
// StrictModes key auth.
type EnsureDirectory struct {
	Path  string
	Owner string
}

func (s EnsureDirectory) Name() string { return "ensure-directory " + s.Path }

func (s EnsureDirectory) Run(ctx context.Context, r remote.Runner) (bool, error) {
	q := shellescape.Quote(s.Path)
	chown := fmt.Sprintf("chown %s %s", shellescape.Quote(s.Owner), q)

	if _, _, err := r.Run(ctx, "test -d "+q); err == nil {
		owner, stderr, err := r.Run(ctx, "stat -c %U "+q)
		if err != nil {
			return false, errors.Wrapf(err, "stat: %s", strings.TrimSpace(stderr))
		}
		if strings.TrimSpace(owner) == s.Owner {
			return false, nil
		}
		if _, stderr, err := r.Run(ctx, chown); err != nil {
			return false, errors.Wrapf(err, "chown: %s", strings.TrimSpace(stderr))
		}
		return true, nil
	}

	if _, stderr, err := r.Run(ctx, "mkdir -p "+q); err != nil {
		return false, errors.Wrapf(err, "mkdir: %s", strings.TrimSpace(stderr))
	}
	if _, stderr, err := r.Run(ctx, chown); err != nil {
		return false, errors.Wrapf(err, "chown: %s", strings.TrimSpace(stderr))
	}
	return true, nil
}

// InstallAuthorizedKey fetches the instance's public key and overwrites the
// user's authorized_keys file with it. It always re-fetches; overwriting
// rather than appending keeps repeated runs convergent.
type InstallAuthorizedKey struct {
	User string
	Keys KeySource
}

func (s InstallAuthorizedKey) Name() string { return "install-authorized-key" }

func (s InstallAuthorizedKey) Run(ctx context.Context, r remote.Runner) (bool, error) {
	key, err := s.Keys.FetchKey(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to fetch public key")
	}

	keyPath := path.Join("/home", s.User, ".ssh", "authorized_keys")
	previous, _ := r.ReadFile(ctx, keyPath) // only consulted for change reporting
	if err := r.WriteFile(ctx, keyPath, key, 0o600); err != nil {
		return false, err
	}
	cmd := fmt.Sprintf("chown %s %s", shellescape.Quote(s.User), shellescape.Quote(keyPath))
	if _, stderr, err := r.Run(ctx, cmd); err != nil {
		return false, errors.Wrapf(err, "chown: %s", strings.TrimSpace(stderr))
	}
	return !bytes.Equal(previous, key), nil
}
