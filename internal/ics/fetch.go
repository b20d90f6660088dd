package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	appLog "chatcal/internal/log"
)

// MaxBodyBytes caps a fetched calendar.
const MaxBodyBytes = 4 << 20

var ErrNotCalendarURL = errors.New("calendar URL must be http or https")

// FetchResult contains the outcome of fetching a calendar URL.
type FetchResult struct {
	Body      []byte
	FromCache bool // true when a 304 or a failed refetch reused the last body
}

// cacheEntry holds HTTP validators for a single URL. Kept in memory only.
type cacheEntry struct {
	ETag         string
	LastModified string
	Body         []byte
	UpdatedAt    time.Time
}

// Fetcher downloads calendars for import, honoring ETag and Last-Modified
// so repeated imports of the same feed stay cheap.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher returns a Fetcher; a nil client gets a 15 second timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cache: make(map[string]cacheEntry)}
}

// Fetch downloads rawURL. On network errors or non-OK statuses it falls
// back to the last body seen for the same URL, if any.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return FetchResult{}, ErrNotCalendarURL
	}

	f.mu.Lock()
	meta, cached := f.cache[rawURL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Info("ics fetch start", "url", redactURL(rawURL))

	resp, err := f.client.Do(req)
	if err != nil {
		if cached {
			appLog.Error("ics fetch network error, using cached body", err, "url", redactURL(rawURL))
			return FetchResult{Body: meta.Body, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
		if readErr != nil {
			return FetchResult{}, readErr
		}
		if len(body) > MaxBodyBytes {
			return FetchResult{}, fmt.Errorf("calendar larger than %d bytes", MaxBodyBytes)
		}

		f.mu.Lock()
		f.cache[rawURL] = cacheEntry{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Body:         body,
			UpdatedAt:    time.Now().UTC(),
		}
		f.mu.Unlock()

		appLog.Info("ics fetch success", "url", redactURL(rawURL), "bytes", len(body))
		return FetchResult{Body: body}, nil

	case http.StatusNotModified:
		if !cached {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics fetch not modified; using cache", "url", redactURL(rawURL))
		return FetchResult{Body: meta.Body, FromCache: true}, nil

	default:
		if cached {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(rawURL))
			return FetchResult{Body: meta.Body, FromCache: true}, nil
		}
		return FetchResult{}, errors.New(resp.Status)
	}
}

// redactURL keeps scheme and host only; feed URLs often embed tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
