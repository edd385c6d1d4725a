package remote

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/spf13/afero"
)

// LocalRunner executes commands on the machine the tool runs on. It backs
// the "local" connection method.
type LocalRunner struct {
	Fs afero.Fs
}

// NewLocalRunner returns a runner operating on the real filesystem.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{Fs: afero.NewOsFs()}
}

func (r *LocalRunner) Run(ctx context.Context, cmd string) (string, string, error) {
	return r.RunInput(ctx, cmd, nil)
}

func (r *LocalRunner) RunInput(ctx context.Context, cmd string, stdin []byte) (string, string, error) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	var outBuf, errBuf bytes.Buffer
	c.Stdout = &outBuf
	c.Stderr = &errBuf
	if stdin != nil {
		c.Stdin = bytes.NewReader(stdin)
	}
	err := c.Run()
	return outBuf.String(), errBuf.String(), err
}

func (r *LocalRunner) ReadFile(_ context.Context, path string) ([]byte, error) {
	return afero.ReadFile(r.Fs, path)
}

func (r *LocalRunner) WriteFile(_ context.Context, path string, data []byte, mode os.FileMode) error {
	return afero.WriteFile(r.Fs, path, data, mode)
}

func (r *LocalRunner) Close() error { return nil }
