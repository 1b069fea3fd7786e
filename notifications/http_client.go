// SPDX-License-Identifier: ice License 1.0

package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
)

type (
	httpClient struct {
		http     *http.Client
		endpoint string
		token    string
	}
)

// NewHTTPClient builds a SnapshotClient over the hub's REST surface.
// The endpoint is the server base URL without a trailing slash.
func NewHTTPClient(endpoint, token string, timeout stdlibtime.Duration) SnapshotClient {
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	return &httpClient{
		http:     &http.Client{Timeout: timeout},
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
	}
}

func (c *httpClient) FetchSnapshot(ctx context.Context, limit, offset int64) (*Snapshot, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(limit))
	query.Set("offset", fmt.Sprint(offset))
	body, err := c.do(ctx, http.MethodGet, "/api/v1/notifications?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch notifications page")
	}
	var snapshot Snapshot
	if err = json.Unmarshal(body, &snapshot); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal notifications page %v", string(body))
	}

	return &snapshot, nil
}

func (c *httpClient) MarkRead(ctx context.Context, ids []string) error {
	payload, err := json.Marshal(struct {
		IDs []string `json:"ids"`
	}{IDs: ids})
	if err != nil {
		return errors.Wrap(err, "failed to marshal read request")
	}
	_, err = c.do(ctx, http.MethodPost, "/api/v1/notifications/read", payload)

	return errors.Wrapf(err, "failed to mark notifications read %#v", ids)
}

func (c *httpClient) MarkAllRead(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/notifications/read-all", nil)

	return errors.Wrap(err, "failed to mark all notifications read")
}

func (c *httpClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %v %v request", method, path)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %v %v", method, path)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %v %v response", method, path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected %v status for %v %v: %v", resp.StatusCode, method, path, string(body))
	}

	return body, nil
}
