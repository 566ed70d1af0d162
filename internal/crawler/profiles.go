package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/schedule-crawler/internal/extract"
	"github.com/JakeFAU/schedule-crawler/internal/metrics"
	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

// ProfileFetcher loads speaker profile pages for the reconciler.
type ProfileFetcher struct {
	fetcher schedule.PageFetcher
	timeout time.Duration
}

// NewProfileFetcher wraps a page fetcher with the profile page timeout.
func NewProfileFetcher(fetcher schedule.PageFetcher, timeout time.Duration) *ProfileFetcher {
	metrics.Init()
	return &ProfileFetcher{fetcher: fetcher, timeout: timeout}
}

// FetchProfile fetches and parses one speaker profile.
func (p *ProfileFetcher) FetchProfile(ctx context.Context, profileURL string) (schedule.Profile, error) {
	body, err := fetchPage(ctx, p.fetcher, metrics.PageProfile, schedule.FetchRequest{
		URL:          profileURL,
		WaitSelector: extract.ProfileReadySelector,
		Timeout:      p.timeout,
	})
	if err != nil {
		return schedule.Profile{}, err
	}
	return extract.Profile(body)
}

// fetchPage runs one fetch and records its outcome.
func fetchPage(ctx context.Context, fetcher schedule.PageFetcher, page string, req schedule.FetchRequest) ([]byte, error) {
	start := time.Now()
	body, err := fetcher.Fetch(ctx, req)
	metrics.ObservePageFetch(page, err, time.Since(start))
	return body, err
}
