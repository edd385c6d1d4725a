package remote

import (
	"context"
	"io/fs"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunnerRun(t *testing.T) {
	r := &LocalRunner{Fs: afero.NewMemMapFs()}

	stdout, stderr, err := r.Run(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
	assert.Empty(t, stderr)
}

func TestLocalRunnerRunFailure(t *testing.T) {
	r := &LocalRunner{Fs: afero.NewMemMapFs()}

	_, _, err := r.Run(context.Background(), "exit 3")
	require.Error(t, err)
}

func TestLocalRunnerRunInput(t *testing.T) {
	r := &LocalRunner{Fs: afero.NewMemMapFs()}

	stdout, _, err := r.RunInput(context.Background(), "cat", []byte("key material"))
	require.NoError(t, err)
	assert.Equal(t, "key material", stdout)
}

func TestLocalRunnerFiles(t *testing.T) {
	r := &LocalRunner{Fs: afero.NewMemMapFs()}
	ctx := context.Background()

	_, err := r.ReadFile(ctx, "/etc/sudoers")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, r.WriteFile(ctx, "/etc/sudoers", []byte("root  ALL=(ALL)  ALL\n"), 0o440))

	content, err := r.ReadFile(ctx, "/etc/sudoers")
	require.NoError(t, err)
	assert.Equal(t, "root  ALL=(ALL)  ALL\n", string(content))
}
