package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client talks to the upstream transfer-orchestration API. All calls carry
// a bearer header from the token cache; context deadlines bound each call.
type Client struct {
	baseURL    string
	tokens     *TokenCache
	httpClient *http.Client
	pageSize   int
}

func NewClient(baseURL string, tokens *TokenCache, httpClient *http.Client, pageSize int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		pageSize:   pageSize,
	}
}

// ListJobs fetches the complete job list, following pagination until the
// upstream reports no further items.
func (c *Client) ListJobs(ctx context.Context) ([]RawJob, error) {
	var jobs []RawJob
	offset := 0
	for {
		q := url.Values{}
		q.Set("offset", fmt.Sprint(offset))
		q.Set("limit", fmt.Sprint(c.pageSize))

		var page RawJobPage
		if err := c.get(ctx, "/jobs?"+q.Encode(), "", &page); err != nil {
			return nil, err
		}
		jobs = append(jobs, page.Items...)

		offset += len(page.Items)
		if len(page.Items) < c.pageSize || (page.TotalCount > 0 && offset >= page.TotalCount) {
			return jobs, nil
		}
	}
}

// ActiveTransfer fetches the in-progress transfer detail for one job.
// Returns nil when the upstream reports no active transfer.
func (c *Client) ActiveTransfer(ctx context.Context, jobID string) (*RawTransfer, error) {
	var page RawTransferPage
	path := fmt.Sprintf("/jobs/%s/transfers?state=IN_PROGRESS", url.PathEscape(jobID))
	if err := c.get(ctx, path, jobID, &page); err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return &page.Items[0], nil
}

// StartDelivery requests a manual run of the job.
func (c *Client) StartDelivery(ctx context.Context, jobID string) error {
	path := fmt.Sprintf("/jobs/%s/deliveries", url.PathEscape(jobID))
	return c.send(ctx, http.MethodPost, path, jobID, map[string]interface{}{})
}

// SetPaused pauses or resumes the job.
func (c *Client) SetPaused(ctx context.Context, jobID string, paused bool) error {
	path := "/jobs/" + url.PathEscape(jobID)
	return c.send(ctx, http.MethodPatch, path, jobID, map[string]interface{}{"paused": paused})
}

// DeleteJob removes the job upstream.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return err
	}
	return c.do(req, jobID, nil)
}

func (c *Client) get(ctx context.Context, path, jobID string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return wrapReqErr(jobID, err)
	}
	return c.do(req, jobID, out)
}

func (c *Client) send(ctx context.Context, method, path, jobID string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return wrapReqErr(jobID, err)
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(payload))
	if err != nil {
		return wrapReqErr(jobID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, jobID, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
}

func (c *Client) do(req *http.Request, jobID string, out interface{}) error {
	header, err := c.tokens.AuthHeader(req.Context())
	if err != nil {
		return err // *AuthError passes through untouched
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{JobID: jobID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UpstreamError{JobID: jobID, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{JobID: jobID, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func wrapReqErr(jobID string, err error) error {
	return &UpstreamError{JobID: jobID, Err: err}
}
