// Package metadata fetches provisioning-time data from the cloud instance
// metadata service.
package metadata

import (
	"context"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const (
	// DefaultBaseURL is the link-local metadata endpoint cloud instances expose.
	DefaultBaseURL = "http://169.254.169.254/latest"

	opensshKeyPath = "/meta-data/public-keys/0/openssh-key"
)

// Client fetches from one instance metadata endpoint.
type Client struct {
	resty *resty.Client
}

// NewClient returns a client for the given base URL, or the well-known
// metadata endpoint when baseURL is empty.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetTimeout(10 * time.Second)
	return &Client{resty: c}
}

// FetchKey returns the instance's OpenSSH public key verbatim.
func (c *Client) FetchKey(ctx context.Context) ([]byte, error) {
	resp, err := c.resty.R().SetContext(ctx).Get(opensshKeyPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch openssh key")
	}
	if resp.IsError() {
		return nil, errors.Errorf("failed to fetch openssh key: %s %s", resp.Request.URL, resp.Status())
	}
	return resp.Body(), nil
}
