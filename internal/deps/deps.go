// Package deps holds the collaborator that puts CI's OS-level dependencies
// on a target host. The workflow executor only sees the Installer
// interface and stays agnostic of package-manager details.
package deps

import (
	"context"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/pkg/errors"

	"github.com/eniac111/hostprep/internal/remote"
)

// Installer installs whatever OS packages the CI system needs on the target
// host, idempotently, and signals success or failure along with whether the
// host was actually modified.
type Installer interface {
	Install(ctx context.Context, r remote.Runner) (changed bool, err error)
}

// PackageInstaller installs a fixed package list with whichever supported
// package manager the host has. Package managers are idempotent for
// already-installed packages, so repeated runs converge.
type PackageInstaller struct {
	Packages []string
}

var packageManagers = []struct {
	binary  string
	install string
}{
	{"dnf", "dnf install -y"},
	{"yum", "yum install -y"},
	{"apt-get", "DEBIAN_FRONTEND=noninteractive apt-get install -y"},
}

func (p PackageInstaller) Install(ctx context.Context, r remote.Runner) (bool, error) {
	if len(p.Packages) == 0 {
		return false, nil
	}

	quoted := make([]string, len(p.Packages))
	for i, pkg := range p.Packages {
		quoted[i] = shellescape.Quote(pkg)
	}

	for _, pm := range packageManagers {
		if _, _, err := r.Run(ctx, "command -v "+pm.binary); err != nil {
			continue
		}
		cmd := pm.install + " " + strings.Join(quoted, " ")
		stdout, stderr, err := r.Run(ctx, cmd)
		if err != nil {
			return false, errors.Wrapf(err, "%s: %s", pm.binary, strings.TrimSpace(stderr))
		}
		return installChanged(pm.binary, stdout), nil
	}
	return false, errors.New("no supported package manager found on host")
}

// installChanged tells a real install apart from a rerun where every
// package was already present, based on the manager's output.
func installChanged(binary, stdout string) bool {
	switch binary {
	case "dnf", "yum":
		return !strings.Contains(stdout, "Nothing to do")
	case "apt-get":
		return !strings.Contains(stdout, "0 upgraded, 0 newly installed")
	}
	return true
}

// InstallerStep adapts an Installer into the step engine so the
// dependency workflow shares the executor with user provisioning.
type InstallerStep struct {
	Installer Installer
}

func (s InstallerStep) Name() string { return "install-dependencies" }

func (s InstallerStep) Run(ctx context.Context, r remote.Runner) (bool, error) {
	return s.Installer.Install(ctx, r)
}
