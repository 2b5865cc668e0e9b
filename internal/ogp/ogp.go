// Package ogp builds link previews from Open Graph metadata.
package ogp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/karloscodes/cartridge/cache"
)

// ErrInvalidURL is returned for targets that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid url")

const (
	DefaultTTL          = 24 * time.Hour
	DefaultFetchTimeout = 10 * time.Second

	maxBodyBytes = 2 << 20
	browserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Preview is the card shown for an external link.
type Preview struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Image       *string `json:"image"`
	SiteName    *string `json:"siteName"`
	Favicon     *string `json:"favicon"`
}

// Store resolves previews for URLs.
type Store interface {
	Get(rawURL string) (Preview, error)
}

// ParseTarget validates rawURL as an absolute http(s) URL.
func ParseTarget(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return u, nil
}

func googleFavicon(u *url.URL) *string {
	icon := "https://www.google.com/s2/favicons?domain=" + url.QueryEscape(u.Hostname()) + "&sz=32"
	return &icon
}

// Fallback is the preview used when the page cannot be fetched.
func Fallback(u *url.URL) Preview {
	return Preview{
		URL:     u.String(),
		Title:   u.Hostname(),
		Favicon: googleFavicon(u),
	}
}

// Fetcher downloads pages and extracts their metadata.
type Fetcher struct {
	Client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *Fetcher) Fetch(rawURL string) (Preview, error) {
	u, err := ParseTarget(rawURL)
	if err != nil {
		return Preview{}, err
	}

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return Preview{}, err
	}
	req.Header.Set("User-Agent", browserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

	resp, err := f.Client.Do(req)
	if err != nil {
		return Preview{}, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Preview{}, fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Preview{}, fmt.Errorf("parse %s: %w", u, err)
	}
	return Extract(doc, u), nil
}

func metaContent(doc *goquery.Document, key string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		property, _ := s.Attr("property")
		name, _ := s.Attr("name")
		if !strings.EqualFold(property, key) && !strings.EqualFold(name, key) {
			return true
		}
		content, _ = s.Attr("content")
		content = strings.TrimSpace(content)
		return content == ""
	})
	return content
}

// resolve turns protocol-relative and root-relative references into absolute
// URLs against base.
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if strings.HasPrefix(ref, "//") {
		parsed.Scheme = "https"
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// Extract reads the preview fields from a parsed page served at u.
func Extract(doc *goquery.Document, u *url.URL) Preview {
	title := metaContent(doc, "og:title")
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = u.Hostname()
	}

	description := metaContent(doc, "og:description")
	if description == "" {
		description = metaContent(doc, "description")
	}

	image := metaContent(doc, "og:image")
	if image == "" {
		image = metaContent(doc, "twitter:image")
	}

	favicon := googleFavicon(u)
	doc.Find("link[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel := strings.ToLower(strings.TrimSpace(s.AttrOr("rel", "")))
		if rel != "icon" && rel != "shortcut icon" {
			return true
		}
		if href := resolve(u, s.AttrOr("href", "")); href != "" {
			favicon = &href
			return false
		}
		return true
	})

	return Preview{
		URL:         u.String(),
		Title:       title,
		Description: description,
		Image:       optional(resolve(u, image)),
		SiteName:    optional(metaContent(doc, "og:site_name")),
		Favicon:     favicon,
	}
}

// CachedStore serves previews from a TTL cache in front of a Fetcher.
// Failed fetches are answered with Fallback and are not cached.
type CachedStore struct {
	logger *slog.Logger
	cache  *cache.Cache[string, Preview]
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(logger *slog.Logger, ttl time.Duration, fetcher *Fetcher) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedStore{
		logger: logger,
		cache:  cache.NewCache[string, Preview](logger, ttl, fetcher.Fetch),
	}
}

func (s *CachedStore) Get(rawURL string) (Preview, error) {
	u, err := ParseTarget(rawURL)
	if err != nil {
		return Preview{}, err
	}
	preview, err := s.cache.Get(u.String())
	if err != nil {
		s.logger.Warn("OGP fetch failed, using fallback",
			slog.String("url", u.String()),
			slog.Any("error", err))
		return Fallback(u), nil
	}
	return preview, nil
}
