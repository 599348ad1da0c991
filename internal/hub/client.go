// Package hub talks to the model hub's HTTP API. Every request goes
// through the scheduler; this package only knows how to build requests
// and decode responses.
package hub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/quantmap/quantmap/internal/scheduler"
	"github.com/quantmap/quantmap/pkg/errors"
)

// DefaultBaseURL is the public hub API endpoint.
const DefaultBaseURL = "https://huggingface.co"

// Client is an HTTP client for the hub's listing and detail endpoints.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	sched   *scheduler.Scheduler
}

// New creates a hub client. The token is optional; when present it is
// sent as a bearer token so private and gated models resolve.
func New(baseURL, token string, sched *scheduler.Scheduler) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		// Per-request timeouts are enforced by the scheduler's context, not
		// by the transport.
		http:    &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		sched:   sched,
	}
}

// BaseURL returns the configured hub endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// ListModels fetches one page of the listing endpoint. Transient
// failures are retried by the scheduler before this returns.
func (c *Client) ListModels(ctx context.Context, q ListQuery) (*ListPage, error) {
	reqURL := q.Cursor
	if reqURL == "" {
		reqURL = c.listURL(q)
	}

	var page *ListPage
	err := c.sched.Do(ctx, func(ctx context.Context) error {
		var opErr error
		page, opErr = c.fetchPage(ctx, reqURL)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetModel fetches the detail payload for one model, including file
// sizes for LFS blobs.
func (c *Client) GetModel(ctx context.Context, id string) (*ModelDetail, error) {
	reqURL := c.baseURL + "/api/models/" + id + "?blobs=true"

	var detail ModelDetail
	err := c.sched.Do(ctx, func(ctx context.Context) error {
		return c.getJSON(ctx, reqURL, &detail)
	})
	if err != nil {
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = id
	}
	return &detail, nil
}

// listURL builds the first-page listing URL for a query.
func (c *Client) listURL(q ListQuery) string {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Author != "" {
		v.Set("author", q.Author)
	}
	if q.Filter != "" {
		v.Set("filter", q.Filter)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
		v.Set("direction", "-1")
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	u := c.baseURL + "/api/models"
	if enc := v.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// fetchPage retrieves one listing page and extracts the next-page cursor
// from the Link header.
func (c *Client) fetchPage(ctx context.Context, reqURL string) (*ListPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.WrapHub(reqURL, 0, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapHub(reqURL, 0, err)
	}

	var summaries []ModelSummary
	next := nextLink(resp.Header.Get("Link"))
	if err := decodeBody(resp, reqURL, &summaries); err != nil {
		return nil, err
	}
	return &ListPage{Models: summaries, NextCursor: next}, nil
}

// getJSON performs a GET and decodes the JSON body into target.
func (c *Client) getJSON(ctx context.Context, reqURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.WrapHub(reqURL, 0, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapHub(reqURL, 0, err)
	}
	return decodeBody(resp, reqURL, target)
}

// setHeaders applies common headers and optional authentication.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "quantmap-sync")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// decodeBody decodes a JSON response into the target structure, mapping
// non-200 statuses and malformed payloads onto the failure taxonomy.
func decodeBody(resp *http.Response, endpoint string, target any) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapHub(endpoint, resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &errors.HubError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", endpoint, err)
	}
	return nil
}

// nextLink extracts the rel="next" URL from a Link header, or "".
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		urlSeg := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(urlSeg, "<") || !strings.HasSuffix(urlSeg, ">") {
			continue
		}
		for _, attr := range segs[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				return strings.Trim(urlSeg, "<>")
			}
		}
	}
	return ""
}
