package fpp_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mcdev12/fppsync/go/clients"
)

// ErrMalformedStatus is returned when fppd answers with a body that is not a JSON object.
var ErrMalformedStatus = errors.New("malformed fppd status body")

// FppClient reads the player status from fppd.
type FppClient struct {
	*clients.BaseClient
	statusEndpoint string
}

// NewFppClient builds a client from a full status URL such as
// http://127.0.0.1/api/fppd/status.
func NewFppClient(statusURL string, timeout time.Duration) (*FppClient, error) {
	u, err := url.Parse(statusURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse status url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("status url %q must be absolute", statusURL)
	}

	endpoint := u.EscapedPath()
	if endpoint == "" {
		endpoint = StatusEndpoint
	}
	if u.RawQuery != "" {
		endpoint += "?" + u.RawQuery
	}

	client := &FppClient{
		BaseClient:     clients.NewBaseClient(u.Scheme + "://" + u.Host),
		statusEndpoint: endpoint,
	}
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return client, nil
}

// StatusURL returns the full URL being polled.
func (c *FppClient) StatusURL() string {
	return c.BaseURL() + c.statusEndpoint
}

// FetchStatus performs one GET of the status endpoint and decodes it into a
// loosely typed map. Numbers are kept as json.Number so integer fields survive intact.
func (c *FppClient) FetchStatus(ctx context.Context) (map[string]any, error) {
	body, err := c.Get(ctx, c.statusEndpoint)
	if err != nil {
		return nil, err
	}

	var status map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStatus, err)
	}
	if status == nil {
		return nil, ErrMalformedStatus
	}

	return status, nil
}
