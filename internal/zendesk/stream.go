package zendesk

import (
	"context"
	"time"

	"ticketsync/internal/ticket"
)

// TicketStream walks the upstream pages lazily, one record at a time.
// Usage mirrors sql.Rows:
//
//	stream := client.Stream(ctx, zendesk.Query{})
//	for stream.Next() {
//	    raw := stream.Ticket()
//	    ...
//	}
//	if err := stream.Err(); err != nil { ... }
//
// A failed stream keeps every record already yielded valid: the consumer
// must treat the partial sequence as a partial result, not a discarded one.
type TicketStream struct {
	client *Client
	ctx    context.Context
	query  Query

	buf     []ticket.RawTicket
	bufPos  int
	nextURL string
	started bool
	done    bool
	err     error
	pages   int
}

// Next advances to the next record, fetching further pages as needed.
// It returns false at end of stream or on error; check Err afterwards.
func (s *TicketStream) Next() bool {
	for {
		if s.err != nil {
			return false
		}
		if s.bufPos < len(s.buf) {
			s.bufPos++
			return true
		}
		if s.done {
			return false
		}
		s.fetchNextPage()
	}
}

// Ticket returns the current record. Only valid after Next returned true.
func (s *TicketStream) Ticket() ticket.RawTicket {
	return s.buf[s.bufPos-1]
}

// Err returns the error that terminated the stream, if any.
func (s *TicketStream) Err() error {
	return s.err
}

// Pages returns the number of page requests completed so far.
func (s *TicketStream) Pages() int {
	return s.pages
}

func (s *TicketStream) fetchNextPage() {
	pageURL := s.nextURL
	if !s.started {
		pageURL = s.client.firstPageURL(s.query)
		s.started = true
	}
	if pageURL == "" {
		s.done = true
		return
	}

	page, err := s.client.fetchPage(s.ctx, pageURL)
	if err != nil {
		s.err = err
		s.done = true
		return
	}
	s.pages++

	s.buf = s.filter(page.Tickets)
	s.bufPos = 0

	s.nextURL = page.NextPage
	if s.nextURL == "" {
		s.nextURL = page.Links.Next
	}
	if s.nextURL == "" || len(page.Tickets) == 0 {
		s.nextURL = ""
		if len(page.Tickets) == 0 {
			s.done = true
		}
	}
}

// filter drops records at or before the incremental watermark. The upstream
// window is request-level and can overshoot, so the bound is re-checked
// here; records with unparsable timestamps are kept rather than silently
// dropped.
func (s *TicketStream) filter(raws []ticket.RawTicket) []ticket.RawTicket {
	if s.query.Since == nil {
		return raws
	}
	out := raws[:0:0]
	for _, raw := range raws {
		updated, err := time.Parse(time.RFC3339, raw.UpdatedAt)
		if err != nil || updated.After(*s.query.Since) {
			out = append(out, raw)
		}
	}
	return out
}
