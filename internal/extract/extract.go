// Package extract holds the field selectors for the three page kinds of a
// Grenadine schedule site and turns rendered HTML into raw field sets.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

// Ready selectors: a page counts as loaded once its selector matches.
const (
	CalendarReadySelector = "[data-session-id]"
	SessionReadySelector  = ".d-flex.flex-wrap.justify-content-center.my-5"
	ProfileReadySelector  = "body"
)

const (
	sessionSpeakerSelector = ".d-flex.flex-wrap.justify-content-center.my-5 > div"
	speakerNameSelector    = "p.text-dark.text-small.mb-0"
	socialSelector         = ".social-media-container a.%s:not(.admin)"
)

var speakerIDPattern = regexp.MustCompile(`/people/(\d+)`)

// SessionDetail is what a session page contributes to its event.
type SessionDetail struct {
	DateText string
	Speakers []schedule.PartialSpeaker
}

// Calendar extracts one raw event per distinct data-session-id, keeping the
// first occurrence when the markup repeats a session.
func Calendar(html []byte) ([]schedule.Event, error) {
	doc, err := parse(html)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var events []schedule.Event
	doc.Find("[data-session-id]").Each(func(_ int, sel *goquery.Selection) {
		id := strings.TrimSpace(sel.AttrOr("data-session-id", ""))
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		events = append(events, schedule.Event{
			SessionID:   id,
			Title:       text(sel.Find(".card-title")),
			Description: strings.TrimSpace(sel.Find(".card-description-text").First().Text()),
			Location:    text(sel.Find(".text-small a")),
			SessionTime: text(sel.Find(".time-muted")),
		})
	})
	return events, nil
}

// Session extracts the date text and inline speakers from a session page.
// Relative profile links are resolved against pageURL.
func Session(html []byte, pageURL string) (SessionDetail, error) {
	doc, err := parse(html)
	if err != nil {
		return SessionDetail{}, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return SessionDetail{}, fmt.Errorf("parse page url: %w", err)
	}

	detail := SessionDetail{DateText: sessionDate(text(doc.Find(".time-muted")))}
	doc.Find(sessionSpeakerSelector).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Find("a").First().Attr("href")
		profileURL := resolve(base, href)
		id, _ := SpeakerIDFromURL(profileURL)
		photo, _ := sel.Find("img").First().Attr("src")
		detail.Speakers = append(detail.Speakers, schedule.PartialSpeaker{
			Key:        schedule.NewSpeakerKey(id),
			Name:       text(sel.Find(speakerNameSelector)),
			PhotoURL:   resolve(base, photo),
			Role:       text(sel.Find(".badge")),
			ProfileURL: profileURL,
		})
	})
	return detail, nil
}

// Profile extracts biography, social links, and linked session ids from a
// speaker profile page.
func Profile(html []byte) (schedule.Profile, error) {
	doc, err := parse(html)
	if err != nil {
		return schedule.Profile{}, err
	}
	profile := schedule.Profile{
		Biography: strings.TrimSpace(doc.Find(".person-published-bio").First().Text()),
		SocialLinks: schedule.SocialLinks{
			Facebook:  social(doc, "facebook"),
			Twitter:   social(doc, "twitter"),
			Instagram: social(doc, "instagram"),
			Website:   social(doc, "website"),
		},
	}
	doc.Find(".timeline-item .card-title").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if id, ok := SessionIDFromURL(href); ok {
			profile.SessionIDs = append(profile.SessionIDs, id)
		}
	})
	return profile, nil
}

// SpeakerIDFromURL pulls the numeric id out of a /people/<id> profile URL.
func SpeakerIDFromURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty profile url", schedule.ErrMissingIdentity)
	}
	m := speakerIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", fmt.Errorf("%w: no id in %q", schedule.ErrMissingIdentity, raw)
	}
	return m[1], nil
}

// SessionIDFromURL returns the path segment following "schedule" in a session link.
func SessionIDFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "schedule" && segments[i+1] != "" {
			return segments[i+1], true
		}
	}
	return "", false
}

// sessionDate keeps the part after the first comma of "2:00 PM - 3:00 PM, Friday 4 Oct 2024 (1 hour)".
func sessionDate(raw string) string {
	_, after, ok := strings.Cut(raw, ",")
	if !ok {
		return ""
	}
	if date, _, more := strings.Cut(after, ","); more {
		return strings.TrimSpace(date)
	}
	return strings.TrimSpace(after)
}

func social(doc *goquery.Document, class string) string {
	href, _ := doc.Find(fmt.Sprintf(socialSelector, class)).First().Attr("href")
	return strings.TrimSpace(href)
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.First().Text()), " ")
}

func parse(html []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
