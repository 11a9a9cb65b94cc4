package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/normalize"
)

// Selectors locate posts on a board search results page.
//   - Item: one element per post.
//   - Title, Content: looked up inside Item; an empty Content selector leaves
//     the content blank.
//   - Link: anchor inside Item whose href is the post URL. Defaults to Title.
type Selectors struct {
	Item    string
	Title   string
	Content string
	Link    string
}

// BoardConfig describes one HTML community board.
type BoardConfig struct {
	SearchURL string
	Selectors Selectors
}

// BoardFetcher scrapes a board's search results page.
type BoardFetcher struct {
	base
	board BoardConfig
}

// NewBoard validates board and builds a fetcher for it.
func NewBoard(cfg Config, board BoardConfig, throttle Throttle) (*BoardFetcher, error) {
	if _, err := expandQuery(board.SearchURL, "probe"); err != nil {
		return nil, err
	}
	if board.Selectors.Item == "" || board.Selectors.Title == "" {
		return nil, fmt.Errorf("board selectors need item and title")
	}
	if board.Selectors.Link == "" {
		board.Selectors.Link = board.Selectors.Title
	}
	return &BoardFetcher{base: newBase(cfg, throttle), board: board}, nil
}

// Fetch searches the board for phrase.
func (f *BoardFetcher) Fetch(ctx context.Context, phrase string) ([]crawler.RawItem, error) {
	target, err := expandQuery(f.board.SearchURL, phrase)
	if err != nil {
		return nil, err
	}
	var (
		items    []crawler.RawItem
		parseErr error
		fetchErr error
	)
	c := f.newCollector(ctx)
	c.OnResponse(func(r *colly.Response) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			parseErr = fmt.Errorf("parse html: %w", err)
			return
		}
		items = extractItems(doc, f.board.Selectors, r.Request.AbsoluteURL, f.cfg.MaxItems)
	})
	if err := f.visit(ctx, c, target, &fetchErr); err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return items, nil
}

func extractItems(doc *goquery.Document, sel Selectors, resolve func(string) string, limit int) []crawler.RawItem {
	var out []crawler.RawItem
	doc.Find(sel.Item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		item := crawler.RawItem{
			Title: normalize.CleanText(s.Find(sel.Title).First().Text()),
		}
		if sel.Content != "" {
			item.Content = normalize.CleanText(s.Find(sel.Content).First().Text())
		}
		if href, ok := s.Find(sel.Link).First().Attr("href"); ok {
			href = strings.TrimSpace(href)
			if resolve != nil {
				href = resolve(href)
			}
			item.URL = href
		}
		if item.Title != "" || item.Content != "" {
			out = append(out, item)
		}
		return len(out) < limit
	})
	return out
}
