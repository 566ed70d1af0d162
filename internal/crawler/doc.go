// Package crawler drives a crawl of a Grenadine schedule site: the calendar
// listing, one detail page per session, and speaker profiles on demand. Pages
// that fail are logged and skipped so one bad session never aborts the run.
package crawler
