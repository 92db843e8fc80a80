package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"summarybot/internal/article"
	"summarybot/internal/domain"
	"summarybot/internal/summarizer"

	"github.com/mmcdole/gofeed"
)

const (
	userAgent = "Mozilla/5.0 (compatible; summarybot/1.0; +https://github.com/mmcdole/gofeed)"

	feedClientTimeout                    = 20 * time.Second
	fetchFeedsMaxConcurrencyGrowthFactor = 10
)

var feedHTTPClient = &http.Client{Timeout: feedClientTimeout}

// Store is the part of the database the feed package needs.
type Store interface {
	GetUserFeeds(ctx context.Context, userID int64) ([]domain.UserFeed, error)
	GetHourFeeds(ctx context.Context, hourUTC int64) ([]domain.UserFeed, error)
	UpdateFeedTitle(ctx context.Context, feedID int64, feedTitle string) error
}

// ArticleExtractor fetches the readable text behind a feed item link.
type ArticleExtractor interface {
	Extract(ctx context.Context, pageURL string) (article.Article, error)
}

type Fetcher struct {
	store  Store
	parser *Parser
	log    *slog.Logger
}

func NewFetcher(
	store Store,
	s summarizer.Summarizer,
	extractor ArticleExtractor,
	log *slog.Logger,
) *Fetcher {
	return &Fetcher{
		store:  store,
		parser: NewParser(store, s, extractor, defaultLibParser, log),
		log:    log,
	}
}

func defaultLibParser() *gofeed.Parser {
	p := gofeed.NewParser()
	p.Client = feedHTTPClient
	p.UserAgent = userAgent
	p.RSSTranslator = &gofeed.DefaultRSSTranslator{}
	p.AtomTranslator = &gofeed.DefaultAtomTranslator{}
	p.JSONTranslator = &gofeed.DefaultJSONTranslator{}

	return p
}

// FindValidFeeds returns every URL in text that parses as a feed.
func (f *Fetcher) FindValidFeeds(
	ctx context.Context,
	text string,
) ([]domain.Feed, error) {
	urls, err := article.FindURLs(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("find URLs: %w", err)
	}

	feeds := make([]domain.Feed, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	var errs []error

	for _, u := range urls {
		feed, validateFeedErr := f.validateFeed(ctx, u)
		if validateFeedErr != nil {
			errs = append(errs, fmt.Errorf("validate feed: %w", validateFeedErr))
			continue
		}

		if _, ok := seen[feed.URL]; ok {
			continue
		}

		feeds = append(feeds, feed)
		seen[feed.URL] = struct{}{}
	}

	return feeds, errors.Join(errs...)
}

func (f *Fetcher) FetchHourFeeds(
	ctx context.Context,
	hourUTC int64,
) (map[int64][]domain.Post, error) {
	feeds, err := f.store.GetHourFeeds(ctx, hourUTC)
	if err != nil {
		return nil, fmt.Errorf("get hour feeds: %w", err)
	}

	return f.fetchFeeds(ctx, feeds)
}

func (f *Fetcher) FetchUserFeeds(
	ctx context.Context,
	userID int64,
) (map[int64][]domain.Post, error) {
	feeds, err := f.store.GetUserFeeds(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user feeds: %w", err)
	}

	return f.fetchFeeds(ctx, feeds)
}

func (f *Fetcher) validateFeed(
	ctx context.Context,
	feedURL string,
) (domain.Feed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return domain.Feed{}, errors.New("feed URL is empty")
	}

	if _, err := url.Parse(feedURL); err != nil {
		return domain.Feed{}, fmt.Errorf("parse URL: %w", err)
	}

	parsed, err := f.parser.newLibParser().ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("parse feed (URL = %s): %w", feedURL, err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		f.log.WarnContext(ctx, "Empty feed title",
			"feedURL", feedURL,
			"fallbackTitle", feedURL)

		title = feedURL
	}

	return domain.Feed{URL: feedURL, Title: title}, nil
}

func (f *Fetcher) fetchFeeds(
	ctx context.Context,
	feeds []domain.UserFeed,
) (map[int64][]domain.Post, error) {
	userPostsMap := make(map[int64][]domain.Post)
	if len(feeds) == 0 {
		return userPostsMap, nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	concurrency := min(runtime.NumCPU()*fetchFeedsMaxConcurrencyGrowthFactor, len(feeds))
	semCh := make(chan struct{}, concurrency)

	for _, feed := range feeds {
		semCh <- struct{}{}

		wg.Go(func() {
			defer func() { <-semCh }()

			posts, err := f.parser.ParseFeed(ctx, &feed)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = append(errs, fmt.Errorf("parse feed (ID = %d): %w", feed.ID, err))
			}

			if len(posts) != 0 {
				userPostsMap[feed.UserID] = append(userPostsMap[feed.UserID], posts...)
			}
		})
	}

	wg.Wait()

	f.log.DebugContext(ctx, "Feeds are fetched",
		"feedCount", len(feeds),
		"usersWithPosts", len(userPostsMap),
		"errorCount", len(errs))

	return userPostsMap, errors.Join(errs...)
}
