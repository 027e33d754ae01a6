// Package zendesk implements the upstream ticket API client: cursor-based
// pagination with transparent rate-limit retry.
package zendesk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ticketsync/internal/config"
	"ticketsync/internal/errors"
	"ticketsync/internal/ticket"
)

const (
	// defaultRetryWait is used when a rate-limit response carries no
	// Retry-After hint.
	defaultRetryWait = 5 * time.Second

	// maxRetries bounds rate-limit retries per page before the fetch is
	// escalated to a fatal error.
	maxRetries = 5
)

// Client talks to the Zendesk ticket API.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	pageSize   int
	httpClient *http.Client

	// retryWait overrides the default rate-limit wait; tests shorten it.
	retryWait time.Duration
	// sleep is swappable in tests.
	sleep func(time.Duration)
}

// NewClient creates a client from the application configuration.
func NewClient(cfg *config.Config) *Client {
	baseURL := cfg.ZendeskBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.zendesk.com/api/v2", cfg.ZendeskSubdomain)
	}
	return &Client{
		baseURL:    baseURL,
		email:      cfg.ZendeskEmail,
		apiToken:   cfg.ZendeskAPIToken,
		pageSize:   cfg.FetchPageSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryWait:  defaultRetryWait,
		sleep:      time.Sleep,
	}
}

// ticketsPage is one page of the upstream tickets response.
type ticketsPage struct {
	Tickets  []ticket.RawTicket `json:"tickets"`
	Count    int                `json:"count"`
	NextPage string             `json:"next_page"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

// Query restricts a fetch to tickets updated after Since. The zero Query
// fetches everything.
type Query struct {
	Since *time.Time
}

// Stream starts a lazy paginated fetch. The stream is finite and not
// restartable; rate-limited pages are retried transparently, so the
// consumer observes a slower but unbroken sequence.
func (c *Client) Stream(ctx context.Context, q Query) *TicketStream {
	return &TicketStream{client: c, ctx: ctx, query: q}
}

// GetTicket fetches a single ticket by id. Returns nil without error when
// the ticket does not exist upstream.
func (c *Client) GetTicket(ctx context.Context, id int64) (*ticket.RawTicket, error) {
	var out struct {
		Ticket ticket.RawTicket `json:"ticket"`
	}
	status, err := c.getJSON(ctx, fmt.Sprintf("%s/tickets/%d.json", c.baseURL, id), &out)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out.Ticket, nil
}

// TestConnection verifies that the API accepts the configured credentials.
func (c *Client) TestConnection(ctx context.Context) error {
	var out ticketsPage
	_, err := c.getJSON(ctx, c.baseURL+"/tickets.json?per_page=1", &out)
	return err
}

// firstPageURL builds the initial request URL; subsequent pages come from
// the response's next-page link.
func (c *Client) firstPageURL(q Query) string {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(c.pageSize))
	if q.Since != nil {
		params.Set("sort_by", "updated_at")
		params.Set("sort_order", "desc")
		params.Set("start_time", strconv.FormatInt(q.Since.Unix(), 10))
	} else {
		params.Set("sort_by", "created_at")
		params.Set("sort_order", "desc")
	}
	return c.baseURL + "/tickets.json?" + params.Encode()
}

// fetchPage requests one page, retrying rate-limit responses in place.
func (c *Client) fetchPage(ctx context.Context, pageURL string) (*ticketsPage, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		page, retryAfter, err := c.fetchPageOnce(ctx, pageURL)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, errors.ErrTransientFetch) {
			return nil, err
		}
		lastErr = err

		wait := c.retryWait
		if retryAfter > 0 {
			wait = retryAfter
		}
		select {
		case <-ctx.Done():
			return nil, errors.NewFatalFetch("fetch cancelled", ctx.Err())
		default:
		}
		c.sleep(wait)
	}
	return nil, errors.NewFatalFetch(
		fmt.Sprintf("rate-limit retries exhausted after %d attempts", maxRetries+1), lastErr)
}

// fetchPageOnce performs a single page request. A 429 response yields a
// transient error plus the server's Retry-After hint, if any.
func (c *Client) fetchPageOnce(ctx context.Context, pageURL string) (*ticketsPage, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, errors.NewFatalFetch("building page request failed", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, errors.NewTransientFetch("page request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")),
			errors.NewTransientFetch("rate limited by upstream", nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, 0, errors.NewFatalFetch(
			fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var page ticketsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, 0, errors.NewFatalFetch("decoding page response failed", err)
	}
	return &page, 0, nil
}

// getJSON performs an authorized GET and decodes the response into out,
// retrying rate-limit responses in place like fetchPage does. It returns
// the HTTP status alongside any error so callers can special-case 404s.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) (int, error) {
	var (
		lastStatus int
		lastErr    error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		status, retryAfter, err := c.getJSONOnce(ctx, rawURL, out)
		if err == nil || !errors.Is(err, errors.ErrTransientFetch) {
			return status, err
		}
		lastStatus, lastErr = status, err

		wait := c.retryWait
		if retryAfter > 0 {
			wait = retryAfter
		}
		select {
		case <-ctx.Done():
			return status, errors.NewFatalFetch("fetch cancelled", ctx.Err())
		default:
		}
		c.sleep(wait)
	}
	return lastStatus, errors.NewFatalFetch(
		fmt.Sprintf("rate-limit retries exhausted after %d attempts", maxRetries+1), lastErr)
}

// getJSONOnce performs a single authorized GET. A 429 response yields a
// transient error plus the server's Retry-After hint, if any.
func (c *Client) getJSONOnce(ctx context.Context, rawURL string, out any) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, 0, errors.NewFatalFetch("building request failed", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, errors.NewTransientFetch("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")),
			errors.NewTransientFetch("rate limited by upstream", nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, 0, errors.NewFatalFetch(
			fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, string(body)), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, 0, errors.NewFatalFetch("decoding response failed", err)
	}
	return resp.StatusCode, 0, nil
}

// authorize sets the Zendesk API token auth scheme (email/token as user).
func (c *Client) authorize(req *http.Request) {
	req.SetBasicAuth(c.email+"/token", c.apiToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
}

// parseRetryAfter reads a Retry-After header given in whole seconds.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
