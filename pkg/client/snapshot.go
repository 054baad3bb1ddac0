// Package client talks to the analytics backend: the one-shot snapshot
// endpoint over HTTP and the per-pair live tick channel over NATS.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yourusername/quantstream/pkg/model"
)

// ErrSnapshotUnavailable wraps every failure to obtain a snapshot.
var ErrSnapshotUnavailable = errors.New("snapshot unavailable")

// SnapshotSource returns the historical series for a selection.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, sel model.Selection) (*model.Snapshot, error)
}

// SnapshotClient fetches snapshots from GET {base}/api/chart-data.
type SnapshotClient struct {
	client *resty.Client
	path   string
}

// NewSnapshotClient creates a client against baseURL.
func NewSnapshotClient(baseURL string, timeout time.Duration) *SnapshotClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &SnapshotClient{client: client, path: "/api/chart-data"}
}

// SetRetry enables resty's retry on transport errors and 5xx responses.
func (c *SnapshotClient) SetRetry(count int, wait time.Duration) {
	c.client.SetRetryCount(count)
	c.client.SetRetryWaitTime(wait)
	c.client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})
}

type errorBody struct {
	Detail any `json:"detail"`
}

// FetchSnapshot requests the snapshot for sel.
func (c *SnapshotClient) FetchSnapshot(ctx context.Context, sel model.Selection) (*model.Snapshot, error) {
	sel = sel.Normalize()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"y_symbol":  sel.BaseSymbol,
			"x_symbol":  sel.HedgeSymbol,
			"timeframe": string(sel.Timeframe),
			"window":    strconv.Itoa(sel.WindowSize),
		}).
		Get(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSnapshotUnavailable, sel.Pair(), err)
	}

	if resp.IsError() {
		detail := resp.Status()
		var body errorBody
		if json.Unmarshal(resp.Body(), &body) == nil && body.Detail != nil {
			detail = fmt.Sprint(body.Detail)
		}
		return nil, fmt.Errorf("%w: %s: %s (status %d)", ErrSnapshotUnavailable, sel.Pair(), detail, resp.StatusCode())
	}

	var snap model.Snapshot
	if err := json.Unmarshal(resp.Body(), &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrSnapshotUnavailable, sel.Pair(), err)
	}
	return &snap, nil
}
