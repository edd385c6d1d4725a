// Package remotetest provides an in-memory remote.Runner for tests.
package remotetest

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/eniac111/hostprep/internal/remote"
)

// FakeRunner simulates a provisioning target. Files live in an in-memory
// filesystem; the small set of shell commands the provisioning steps emit
// (id, useradd, test, mkdir, stat, chown, command) is interpreted against it.
type FakeRunner struct {
	FS       afero.Fs
	Users    map[string]bool
	Binaries map[string]bool   // names resolvable via `command -v`
	Owners   map[string]string // path -> owner assigned by chown/useradd
	Commands []string          // every command passed to Run/RunInput, in order
	FailOn   map[string]error  // command substring -> injected error
	Outputs  map[string]string // command substring -> injected stdout
	Closed   bool
}

var _ remote.Runner = (*FakeRunner)(nil)

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		FS:       afero.NewMemMapFs(),
		Users:    map[string]bool{},
		Binaries: map[string]bool{},
		Owners:   map[string]string{},
		FailOn:   map[string]error{},
		Outputs:  map[string]string{},
	}
}

func (f *FakeRunner) Run(ctx context.Context, cmd string) (string, string, error) {
	return f.RunInput(ctx, cmd, nil)
}

func (f *FakeRunner) RunInput(_ context.Context, cmd string, _ []byte) (string, string, error) {
	f.Commands = append(f.Commands, cmd)
	for substr, err := range f.FailOn {
		if strings.Contains(cmd, substr) {
			return "", err.Error(), err
		}
	}
	for substr, out := range f.Outputs {
		if strings.Contains(cmd, substr) {
			return out, "", nil
		}
	}

	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", "", nil
	}

	switch fields[0] {
	case "id":
		name := fields[len(fields)-1]
		if f.Users[name] {
			return "1001\n", "", nil
		}
		return "", "id: '" + name + "': no such user\n", errors.New("exit status 1")
	case "useradd":
		name := fields[len(fields)-1]
		f.Users[name] = true
		for _, flag := range fields[1 : len(fields)-1] {
			if flag == "--create-home" || flag == "-m" {
				home := "/home/" + name
				_ = f.FS.MkdirAll(home, 0o755)
				f.Owners[home] = name
			}
		}
		return "", "", nil
	case "test":
		if len(fields) == 3 && fields[1] == "-d" {
			if ok, _ := afero.DirExists(f.FS, fields[2]); ok {
				return "", "", nil
			}
			return "", "", errors.New("exit status 1")
		}
		return "", "", nil
	case "mkdir":
		return "", "", f.FS.MkdirAll(fields[len(fields)-1], 0o755)
	case "stat":
		if len(fields) == 4 && fields[1] == "-c" && fields[2] == "%U" {
			owner := f.Owners[fields[3]]
			if owner == "" {
				owner = "root"
			}
			return owner + "\n", "", nil
		}
		return "", "", nil
	case "chown":
		owner := fields[len(fields)-2]
		path := fields[len(fields)-1]
		f.Owners[path] = strings.TrimSuffix(owner, ":")
		return "", "", nil
	case "command":
		if len(fields) == 3 && fields[1] == "-v" {
			if f.Binaries[fields[2]] {
				return "/usr/bin/" + fields[2] + "\n", "", nil
			}
			return "", "", errors.New("exit status 1")
		}
		return "", "", nil
	default:
		return "", "", nil
	}
}

func (f *FakeRunner) ReadFile(_ context.Context, path string) ([]byte, error) {
	return afero.ReadFile(f.FS, path)
}

func (f *FakeRunner) WriteFile(_ context.Context, path string, data []byte, mode os.FileMode) error {
	return afero.WriteFile(f.FS, path, data, mode)
}

func (f *FakeRunner) Close() error {
	f.Closed = true
	return nil
}

// CommandIndex returns the position of the first recorded command containing
// substr, or -1 if none does.
func (f *FakeRunner) CommandIndex(substr string) int {
	for i, cmd := range f.Commands {
		if strings.Contains(cmd, substr) {
			return i
		}
	}
	return -1
}
