// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package discovery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
)

// DefaultTTL is the worker registration lifetime used when callers
// don't specify one (spec.md §6, mirrored from original_source's
// DEFAULT_TTL).
const DefaultTTL = 60 * time.Second

// retryPolicy governs retries of transient (network-level) discovery
// failures; it mirrors the teacher's own retryPolicy in
// exec/bigmachine.go.
var retryPolicy = retry.Backoff(200*time.Millisecond, 5*time.Second, 1.5)

// WorkerInfo is what the discovery service reports back about a
// worker registration.
type WorkerInfo struct {
	Port int    `json:"port"`
	TTL  int    `json:"ttl"`
	ID   string `json:"id"`
}

// Client is an HTTP client for the discovery service's task/worker/
// credit API (spec.md §6). It is the sole way the foreman and worker
// talk to that external collaborator.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	maxAttempts int
}

// NewClient returns a Client against baseURL (e.g.
// "http://localhost:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		maxAttempts: 4,
	}
}

// RegisterWorker registers (or re-registers, for the heartbeat) a
// worker listening on port with the given ttl.
func (c *Client) RegisterWorker(ctx context.Context, port int, ttl time.Duration) (WorkerInfo, error) {
	form := url.Values{
		"port": {strconv.Itoa(port)},
		"ttl":  {strconv.Itoa(int(ttl.Seconds()))},
	}
	var info WorkerInfo
	err := c.do(ctx, http.MethodPost, "/workers", form, &info)
	return info, err
}

// RequestTasks asks for n task assignments. The discovery service
// charges credits against the caller for each task issued; a 406
// response surfaces as *InsufficientCreditsError.
func (c *Client) RequestTasks(ctx context.Context, n int) (map[string][]string, error) {
	form := url.Values{"n": {strconv.Itoa(n)}}
	var assignments map[string][]string
	err := c.do(ctx, http.MethodPost, "/tasks", form, &assignments)
	return assignments, err
}

// FetchKey retrieves the per-task AES-128 key for taskID without
// consuming it (GET /tasks/<id>?valid=1), for a worker to encrypt its
// reply.
func (c *Client) FetchKey(ctx context.Context, taskID string) ([]byte, error) {
	return c.key(ctx, http.MethodGet, taskID, true)
}

// ConsumeKey retrieves and consumes taskID's key (DELETE
// /tasks/<id>?valid=1), for the foreman to decrypt the majority
// winner. Once consumed, the task cannot be invalidated for a refund.
func (c *Client) ConsumeKey(ctx context.Context, taskID string) ([]byte, error) {
	return c.key(ctx, http.MethodDelete, taskID, true)
}

func (c *Client) key(ctx context.Context, method, taskID string, valid bool) ([]byte, error) {
	path := "/tasks/" + url.PathEscape(taskID)
	form := url.Values{"valid": {boolParam(valid)}}
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.doTaskScoped(ctx, method, path, taskID, form, &resp); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(resp.Key)
}

// Invalidate refunds taskID's credits after its replicas disagreed
// (DELETE /tasks/<id>?valid=0), returning the caller's new credit
// balance.
func (c *Client) Invalidate(ctx context.Context, taskID string) (int, error) {
	path := "/tasks/" + url.PathEscape(taskID)
	form := url.Values{"valid": {"0"}}
	var resp struct {
		Credits int `json:"credits"`
	}
	if err := c.doTaskScoped(ctx, http.MethodDelete, path, taskID, form, &resp); err != nil {
		return 0, err
	}
	return resp.Credits, nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// doTaskScoped is like do, but maps a 404 to *UnknownTaskError as
// spec.md §6 requires for every /tasks/<id> endpoint.
func (c *Client) doTaskScoped(ctx context.Context, method, path, taskID string, form url.Values, out interface{}) error {
	err := c.do(ctx, method, path, form, out)
	var serr *ServerError
	if errors2As(err, &serr) && serr.Status == http.StatusNotFound {
		return &UnknownTaskError{TaskID: taskID}
	}
	return err
}

// do performs one discovery request, retrying transient network
// errors with the package's backoff policy, and translating
// documented non-2xx statuses into typed errors.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		err := c.attempt(ctx, method, path, form, out)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
		log.Debug.Printf("discovery: transient error on %s %s (attempt %d): %v", method, path, attempt, err)
		if werr := retry.Wait(ctx, retryPolicy, attempt); werr != nil {
			return werr
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	target := c.BaseURL + path
	if method == http.MethodGet || method == http.MethodDelete {
		if len(form) > 0 {
			target += "?" + form.Encode()
		}
	} else {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.E(errors.Net, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.E(errors.Net, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("discovery: decode %s %s: %w", method, path, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return &ServerError{Status: resp.StatusCode, Body: string(data)}
	case resp.StatusCode == http.StatusNotAcceptable:
		var info struct {
			Available int `json:"available_credits"`
			Needed    int `json:"needed_credits"`
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("discovery: decode insufficient-credits body: %w", err)
		}
		return &InsufficientCreditsError{Available: info.Available, Needed: info.Needed}
	default:
		return &ServerError{Status: resp.StatusCode, Body: string(data)}
	}
}

func isTransient(err error) bool {
	return errors.Is(errors.Net, err)
}

// errors2As is a tiny local errors.As to avoid pulling in the
// standard "errors" package name alongside grailbio/base/errors.
func errors2As(err error, target **ServerError) bool {
	se, ok := err.(*ServerError)
	if !ok {
		return false
	}
	*target = se
	return true
}
