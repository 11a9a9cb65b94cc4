package collyfetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/normalize"
)

// DefaultRedditSearchURL is the public JSON search endpoint.
const DefaultRedditSearchURL = "https://www.reddit.com/search.json?q={query}&sort=relevance&limit=100"

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string `json:"title"`
				Selftext  string `json:"selftext"`
				URL       string `json:"url"`
				Permalink string `json:"permalink"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// RedditFetcher queries Reddit's JSON search API.
type RedditFetcher struct {
	base
	searchURL string
}

// NewReddit builds a RedditFetcher. An empty searchURL uses the public endpoint.
func NewReddit(cfg Config, searchURL string, throttle Throttle) (*RedditFetcher, error) {
	if searchURL == "" {
		searchURL = DefaultRedditSearchURL
	}
	if _, err := expandQuery(searchURL, "probe"); err != nil {
		return nil, err
	}
	return &RedditFetcher{base: newBase(cfg, throttle), searchURL: searchURL}, nil
}

// Fetch returns self posts matching phrase. Link posts without body text are
// skipped.
func (f *RedditFetcher) Fetch(ctx context.Context, phrase string) ([]crawler.RawItem, error) {
	target, err := expandQuery(f.searchURL, phrase)
	if err != nil {
		return nil, err
	}
	var (
		items    []crawler.RawItem
		parseErr error
		fetchErr error
	)
	c := f.newCollector(ctx)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})
	c.OnResponse(func(r *colly.Response) {
		items, parseErr = parseRedditListing(r.Body, f.cfg.MaxItems)
	})
	if err := f.visit(ctx, c, target, &fetchErr); err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return items, nil
}

func parseRedditListing(body []byte, limit int) ([]crawler.RawItem, error) {
	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode reddit listing: %w", err)
	}
	out := make([]crawler.RawItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		text := normalize.CleanText(stripMarkdown(post.Selftext))
		if text == "" {
			continue
		}
		link := post.URL
		if post.Permalink != "" {
			link = "https://www.reddit.com" + post.Permalink
		}
		out = append(out, crawler.RawItem{
			Title:   normalize.CleanText(post.Title),
			Content: text,
			URL:     link,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

var markdownReplacer = strings.NewReplacer("**", "", "~~", "", "*", "", "&amp;#x200B;", "")

func stripMarkdown(s string) string {
	return markdownReplacer.Replace(s)
}
