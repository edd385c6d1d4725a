package metadata

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyURL = "http://169.254.169.254/latest/meta-data/public-keys/0/openssh-key"

func TestFetchKey(t *testing.T) {
	c := NewClient("")
	httpmock.ActivateNonDefault(c.resty.GetClient())
	defer httpmock.DeactivateAndReset()

	key := "ssh-rsa AAAAB3NzaC1yc2E ci-bot@metadata"
	httpmock.RegisterResponder(http.MethodGet, keyURL,
		httpmock.NewStringResponder(http.StatusOK, key))

	got, err := c.FetchKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(key), got)
}

func TestFetchKeyHTTPError(t *testing.T) {
	c := NewClient("")
	httpmock.ActivateNonDefault(c.resty.GetClient())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, keyURL,
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	_, err := c.FetchKey(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchKeyNetworkError(t *testing.T) {
	c := NewClient("")
	httpmock.ActivateNonDefault(c.resty.GetClient())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, keyURL,
		httpmock.NewErrorResponder(errors.New("connect: network is unreachable")))

	_, err := c.FetchKey(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch openssh key")
}

func TestNewClientBaseURLOverride(t *testing.T) {
	c := NewClient("http://127.0.0.1:8111/latest")
	httpmock.ActivateNonDefault(c.resty.GetClient())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet,
		"http://127.0.0.1:8111/latest/meta-data/public-keys/0/openssh-key",
		httpmock.NewStringResponder(http.StatusOK, "ssh-ed25519 AAAA"))

	got, err := c.FetchKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519 AAAA", string(got))
}
