package schedule

import (
	"context"
	"time"
)

// FetchRequest describes one page load.
type FetchRequest struct {
	URL string
	// WaitSelector must match an element before the page counts as loaded.
	WaitSelector string
	Timeout      time.Duration
}

// PageFetcher loads a page and returns its rendered HTML.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) ([]byte, error)
}

// Store persists the crawl output.
type Store interface {
	InsertEvents(ctx context.Context, events []Event) ([]StoredEvent, error)
	InsertSpeakers(ctx context.Context, speakers []StoredSpeaker) ([]StoredSpeaker, error)
	DeleteAll(ctx context.Context, collection Collection) error
}
