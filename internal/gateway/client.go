// Package gateway issues bounded, cursor-based queries against the
// OpenSearch-backed log store. Every request carries a field projection and
// a page-size ceiling; pagination is search_after-based so a restarted run
// resumes from its last cursor without skipping or duplicating records.
package gateway

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/kestrelsec/kestrel/internal/config"
)

// Client wraps the OpenSearch connection for the log store.
type Client struct {
	client *opensearch.Client
}

// NewClient connects to the log store and verifies the connection.
func NewClient(cfg config.OpenSearchConfig) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	return &Client{client: client}, nil
}

// Client exposes the underlying OpenSearch client (used by the seeder).
func (c *Client) Client() *opensearch.Client {
	return c.client
}
