package feed

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"summarybot/internal/article"
	"summarybot/internal/domain"
	"summarybot/internal/summarizer"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

const (
	summariesMaxParallelism = 4
	parseFeedGracePeriod    = 10 * time.Minute
	maxItemsPerFeed         = 10
	minItemTextChars        = 400
	fallbackSummaryMaxChars = 200
)

type Parser struct {
	store        Store
	summarizer   summarizer.Summarizer
	extractor    ArticleExtractor
	newLibParser func() *gofeed.Parser
	now          func() time.Time
	log          *slog.Logger
}

// NewParser builds a Parser. newLibParser is called once per parsed feed
// because a gofeed.Parser keeps per-parse state and must not be shared
// between goroutines; nil means the default HTTP-configured parser.
func NewParser(
	store Store,
	s summarizer.Summarizer,
	extractor ArticleExtractor,
	newLibParser func() *gofeed.Parser,
	log *slog.Logger,
) *Parser {
	if newLibParser == nil {
		newLibParser = defaultLibParser
	}

	return &Parser{
		store:        store,
		summarizer:   s,
		extractor:    extractor,
		newLibParser: newLibParser,
		now:          time.Now,
		log:          log,
	}
}

// ParseFeed returns the feed items of the last 24 hours, each with a summary.
func (p *Parser) ParseFeed(
	ctx context.Context,
	feed *domain.UserFeed,
) ([]domain.Post, error) {
	normalizedFeedURL := strings.TrimSpace(feed.URL)
	normalizedFeedTitle := strings.TrimSpace(feed.Title)

	parsed, err := p.newLibParser().ParseURLWithContext(normalizedFeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed (URL = %s): %w", normalizedFeedURL, err)
	}

	parsedTitle := strings.TrimSpace(parsed.Title)

	var updateTitleErr error
	if parsedTitle != "" && parsedTitle != normalizedFeedTitle && p.store != nil {
		if err = p.store.UpdateFeedTitle(ctx, feed.ID, parsedTitle); err != nil {
			updateTitleErr = fmt.Errorf("update feed title: %w", err)
		} else {
			normalizedFeedTitle = parsedTitle
		}
	}

	feedTitle := normalizedFeedTitle
	if feedTitle == "" {
		feedTitle = parsedTitle
	}
	if feedTitle == "" {
		feedTitle = normalizedFeedURL
	}

	posts, items := p.recentPosts(ctx, parsed.Items, feed.ID, feedTitle, normalizedFeedURL)

	summaries := p.summarizeItems(ctx, items)
	for i := range posts {
		posts[i].Summary = summaries[i]
	}

	return posts, updateTitleErr
}

func (p *Parser) recentPosts(
	ctx context.Context,
	items []*gofeed.Item,
	feedID int64,
	feedTitle string,
	feedURL string,
) ([]domain.Post, []*gofeed.Item) {
	now := p.now().Round(time.Hour)
	cutoffTime := now.Add(-24*time.Hour - parseFeedGracePeriod)

	var (
		posts []domain.Post
		kept  []*gofeed.Item
	)

	for _, item := range items {
		if item == nil {
			continue
		}

		publishedTime := now
		if item.PublishedParsed != nil {
			publishedTime = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedTime = *item.UpdatedParsed
		}

		if !publishedTime.After(cutoffTime) {
			continue
		}

		postURL := strings.TrimSpace(item.Link)
		postTitle := strings.TrimSpace(item.Title)

		if postURL == "" {
			p.log.WarnContext(ctx, "Skipping feed item with empty URL",
				"feedURL", feedURL,
				"feedTitle", feedTitle,
				"itemTitle", postTitle)

			continue
		}

		if postTitle == "" {
			postTitle = postURL
		}

		posts = append(posts, domain.Post{
			Title:     postTitle,
			URL:       postURL,
			Published: publishedTime,
			FeedID:    feedID,
			FeedTitle: feedTitle,
			FeedURL:   feedURL,
		})
		kept = append(kept, item)
	}

	order := make([]int, len(posts))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(posts[b].Published.UnixNano(), posts[a].Published.UnixNano())
	})

	if len(order) > maxItemsPerFeed {
		order = order[:maxItemsPerFeed]
	}

	sortedPosts := make([]domain.Post, len(order))
	sortedItems := make([]*gofeed.Item, len(order))
	for i, idx := range order {
		sortedPosts[i] = posts[idx]
		sortedItems[i] = kept[idx]
	}

	return sortedPosts, sortedItems
}

// summarizeItems returns one summary per item in input order.
func (p *Parser) summarizeItems(ctx context.Context, items []*gofeed.Item) []string {
	summaries := make([]string, len(items))
	if len(items) == 0 {
		return summaries
	}

	var g errgroup.Group
	g.SetLimit(summariesMaxParallelism)

	for i, item := range items {
		g.Go(func() error {
			summaries[i] = p.summarizeItem(ctx, item)
			return nil
		})
	}

	_ = g.Wait()

	return summaries
}

func (p *Parser) summarizeItem(ctx context.Context, item *gofeed.Item) string {
	itemURL := strings.TrimSpace(item.Link)
	title := strings.TrimSpace(item.Title)

	text := p.itemText(ctx, item)
	if text == "" {
		return title
	}

	if p.summarizer == nil || ctx.Err() != nil {
		return fallbackSummary(text, title)
	}

	summary, err := p.summarizer.Summarize(ctx, summarizer.Input{
		Text:      text,
		SourceURL: itemURL,
	})
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to summarize feed item",
			"error", err,
			"url", itemURL,
			"fallback", true,
			"textLen", len(text))

		return fallbackSummary(text, title)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fallbackSummary(text, title)
	}

	return summary
}

// itemText prefers the item body and falls back to the linked page when
// the body is only a teaser.
func (p *Parser) itemText(ctx context.Context, item *gofeed.Item) string {
	text := article.StripHTML(item.Content)
	if text == "" {
		text = article.StripHTML(item.Description)
	}

	link := strings.TrimSpace(item.Link)
	if len([]rune(text)) >= minItemTextChars || link == "" || p.extractor == nil {
		return text
	}

	a, err := p.extractor.Extract(ctx, link)
	if err != nil {
		p.log.WarnContext(ctx, "Failed to extract article so item text will be used",
			"error", err,
			"url", link,
			"textLen", len(text))

		return text
	}

	if len(a.Text) > len(text) {
		return a.Text
	}

	return text
}

func fallbackSummary(text string, title string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return title
	}

	runes := []rune(normalized)
	if len(runes) <= fallbackSummaryMaxChars {
		return normalized
	}

	trimmed := strings.TrimSpace(string(runes[:fallbackSummaryMaxChars]))
	if trimmed == "" {
		return normalized
	}

	return trimmed + "..."
}
