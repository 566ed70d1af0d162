// Package main hosts the schedule crawler entrypoint.
//
// A run is one batch job: load configuration from the environment (and an
// optional .env / CONFIG_FILE), clear the store, crawl the calendar, every
// session page, and each speaker profile, then write events followed by
// speakers. The process exits non-zero when the store cannot be cleared or
// written, or when SIGINT/SIGTERM interrupts the crawl; individual page
// failures are logged and skipped.
//
// Fetchers:
//   - chromedp (default): one Chrome process for the run, one tab per page.
//     HEADLESS=false opens a visible window.
//   - static: plain HTTP via Colly, for sites that render server side.
//
// Stores: postgres (DATABASE_URL, schema applied on start) or memory.
//
// METRICS_ADDR, when set, serves /metrics and /healthz for the life of the run.
package main
