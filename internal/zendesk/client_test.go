package zendesk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ticketsync/internal/errors"
	"ticketsync/internal/ticket"
)

// testClient points a client at a fake upstream with instant retries.
func testClient(srv *httptest.Server) (*Client, *[]time.Duration) {
	var slept []time.Duration
	c := &Client{
		baseURL:    srv.URL,
		email:      "ops@acme.test",
		apiToken:   "tok",
		pageSize:   100,
		httpClient: srv.Client(),
		retryWait:  defaultRetryWait,
		sleep:      func(d time.Duration) { slept = append(slept, d) },
	}
	return c, &slept
}

// fakeTickets builds n raw tickets with sequential ids starting at first.
func fakeTickets(first, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{
			"id":         first + i,
			"subject":    fmt.Sprintf("ticket %d", first+i),
			"status":     "open",
			"updated_at": "2024-03-05T12:00:00Z",
		})
	}
	return out
}

func writePage(w http.ResponseWriter, tickets []map[string]any, next string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tickets":   tickets,
		"next_page": next,
	})
}

func drain(t *testing.T, s *TicketStream) []ticket.RawTicket {
	t.Helper()
	var got []ticket.RawTicket
	for s.Next() {
		got = append(got, s.Ticket())
	}
	return got
}

func TestStream_PaginationTermination(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		switch n {
		case 1:
			writePage(w, fakeTickets(1, 100), "http://"+r.Host+"/page2")
		case 2:
			writePage(w, fakeTickets(101, 100), "http://"+r.Host+"/page3")
		case 3:
			writePage(w, fakeTickets(201, 50), "")
		default:
			t.Errorf("unexpected request %d", n)
		}
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	s := c.Stream(context.Background(), Query{})
	got := drain(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(got) != 250 {
		t.Errorf("yielded %d tickets, want 250", len(got))
	}
	if s.Pages() != 3 {
		t.Errorf("Pages() = %d, want 3", s.Pages())
	}
	if requests.Load() != 3 {
		t.Errorf("issued %d requests, want 3", requests.Load())
	}
	// Upstream order is preserved.
	if *got[0].ID != 1 || *got[249].ID != 250 {
		t.Errorf("order broken: first=%d last=%d", *got[0].ID, *got[249].ID)
	}
}

func TestStream_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, nil, "")
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	s := c.Stream(context.Background(), Query{})

	if s.Next() {
		t.Error("Next should be false for an empty upstream")
	}
	if err := s.Err(); err != nil {
		t.Errorf("empty fetch is not an error, got: %v", err)
	}
}

func TestStream_RateLimitRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		switch n {
		case 1:
			writePage(w, fakeTickets(1, 100), "http://"+r.Host+"/page2")
		case 2:
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
		case 3:
			writePage(w, fakeTickets(101, 100), "http://"+r.Host+"/page3")
		case 4:
			writePage(w, fakeTickets(201, 50), "")
		}
	}))
	defer srv.Close()

	c, slept := testClient(srv)
	s := c.Stream(context.Background(), Query{})
	got := drain(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(got) != 250 {
		t.Errorf("yielded %d tickets, want 250 (no duplicates from the retried page)", len(got))
	}
	if len(*slept) != 1 || (*slept)[0] != 5*time.Second {
		t.Errorf("slept %v, want one 5s wait from the Retry-After hint", *slept)
	}

	seen := make(map[int64]bool)
	for _, raw := range got {
		if seen[*raw.ID] {
			t.Fatalf("duplicate ticket %d after retry", *raw.ID)
		}
		seen[*raw.ID] = true
	}
}

func TestStream_RateLimitDefaultWait(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests) // no Retry-After
			return
		}
		writePage(w, fakeTickets(1, 10), "")
	}))
	defer srv.Close()

	c, slept := testClient(srv)
	got := drain(t, c.Stream(context.Background(), Query{}))

	if len(got) != 10 {
		t.Errorf("yielded %d tickets, want 10", len(got))
	}
	if len(*slept) != 1 || (*slept)[0] != defaultRetryWait {
		t.Errorf("slept %v, want the default wait", *slept)
	}
}

func TestStream_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, slept := testClient(srv)
	s := c.Stream(context.Background(), Query{})

	if s.Next() {
		t.Error("Next should be false once retries are exhausted")
	}
	if !errors.Is(s.Err(), errors.ErrFatalFetch) {
		t.Errorf("Err should be FATAL_FETCH, got: %v", s.Err())
	}
	if len(*slept) != maxRetries+1 {
		t.Errorf("slept %d times, want %d", len(*slept), maxRetries+1)
	}
}

func TestStream_PartialFailureKeepsYieldedRecords(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			writePage(w, fakeTickets(1, 100), "http://"+r.Host+"/page2")
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	s := c.Stream(context.Background(), Query{})
	got := drain(t, s)

	if len(got) != 100 {
		t.Errorf("yielded %d tickets before the failure, want 100", len(got))
	}
	if !errors.Is(s.Err(), errors.ErrFatalFetch) {
		t.Errorf("Err should be FATAL_FETCH, got: %v", s.Err())
	}
}

func TestStream_SinceFiltersStaleRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("start_time"); got == "" {
			t.Error("incremental fetch should pass start_time")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tickets": []map[string]any{
				{"id": 1, "updated_at": "2024-03-05T12:00:00Z"},
				{"id": 2, "updated_at": "2024-03-01T12:00:00Z"}, // before the watermark
				{"id": 3, "updated_at": "garbage"},              // unparsable: kept
			},
		})
	}))
	defer srv.Close()

	since := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	c, _ := testClient(srv)
	got := drain(t, c.Stream(context.Background(), Query{Since: &since}))

	if len(got) != 2 {
		t.Fatalf("yielded %d tickets, want 2", len(got))
	}
	if *got[0].ID != 1 || *got[1].ID != 3 {
		t.Errorf("wrong tickets kept: %d, %d", *got[0].ID, *got[1].ID)
	}
}

func TestGetTicket_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	raw, err := c.GetTicket(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if raw != nil {
		t.Errorf("GetTicket = %+v, want nil for a missing ticket", raw)
	}
}

func TestGetTicket_RateLimitRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ticket": map[string]any{"id": 42, "subject": "throttled", "status": "open"},
		})
	}))
	defer srv.Close()

	c, slept := testClient(srv)
	raw, err := c.GetTicket(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if raw == nil || raw.ID == nil || *raw.ID != 42 {
		t.Fatalf("GetTicket = %+v, want ticket 42", raw)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", requests.Load())
	}
	if len(*slept) != 1 || (*slept)[0] != 3*time.Second {
		t.Errorf("slept = %v, want one 3s wait from the Retry-After hint", *slept)
	}
}

func TestGetTicket_RateLimitExhausted(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	_, err := c.GetTicket(context.Background(), 42)
	if !errors.Is(err, errors.ErrFatalFetch) {
		t.Fatalf("GetTicket should return FATAL_FETCH after exhausted retries, got: %v", err)
	}
	if requests.Load() != maxRetries+1 {
		t.Errorf("requests = %d, want %d", requests.Load(), maxRetries+1)
	}
}

func TestTestConnection_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	if err := c.TestConnection(context.Background()); !errors.Is(err, errors.ErrFatalFetch) {
		t.Errorf("TestConnection should return FATAL_FETCH, got: %v", err)
	}
}
