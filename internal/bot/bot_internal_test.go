package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"summarybot/internal/article"
	"summarybot/internal/domain"
	"summarybot/internal/summarizer"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChatID = int64(100)
	testUserID = int64(7)
)

type fakeSender struct {
	mu       sync.Mutex
	messages []*tgbot.SendMessageParams
}

func (s *fakeSender) SendMessage(
	_ context.Context,
	params *tgbot.SendMessageParams,
) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, params)

	return &models.Message{ID: len(s.messages)}, nil
}

func (s *fakeSender) SendChatAction(context.Context, *tgbot.SendChatActionParams) (bool, error) {
	return true, nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	texts := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		texts = append(texts, m.Text)
	}

	return texts
}

func (s *fakeSender) lastText(t *testing.T) string {
	t.Helper()

	texts := s.texts()
	require.NotEmpty(t, texts)

	return texts[len(texts)-1]
}

type memoryStore struct {
	feeds     []domain.UserFeed
	settings  map[int64]int64
	summaries []domain.SummaryRecord
	failAdd   bool
}

func (m *memoryStore) AddFeed(_ context.Context, userID int64, feedURL string, feedTitle string) error {
	if m.failAdd {
		return errors.New("disk is full")
	}

	m.feeds = append(m.feeds, domain.UserFeed{
		ID:     int64(len(m.feeds) + 1),
		UserID: userID,
		URL:    feedURL,
		Title:  feedTitle,
	})

	return nil
}

func (m *memoryStore) RemoveFeed(_ context.Context, userID int64, feedID int64) (bool, error) {
	for i, f := range m.feeds {
		if f.ID == feedID && f.UserID == userID {
			m.feeds = append(m.feeds[:i], m.feeds[i+1:]...)
			return true, nil
		}
	}

	return false, nil
}

func (m *memoryStore) GetUserFeeds(_ context.Context, userID int64) ([]domain.UserFeed, error) {
	var feeds []domain.UserFeed
	for _, f := range m.feeds {
		if f.UserID == userID {
			feeds = append(feeds, f)
		}
	}

	return feeds, nil
}

func (m *memoryStore) GetUserSettingsWithDefault(_ context.Context, userID int64) (*domain.UserSettings, error) {
	return &domain.UserSettings{UserID: userID, AutoDigestHourUTC: m.settings[userID]}, nil
}

func (m *memoryStore) UpsertUserSettings(_ context.Context, userSettings *domain.UserSettings) error {
	if m.settings == nil {
		m.settings = make(map[int64]int64)
	}
	m.settings[userSettings.UserID] = userSettings.AutoDigestHourUTC

	return nil
}

func (m *memoryStore) AddSummary(_ context.Context, record *domain.SummaryRecord) error {
	record.ID = int64(len(m.summaries) + 1)
	record.CreatedAt = time.Now()
	m.summaries = append(m.summaries, *record)

	return nil
}

func (m *memoryStore) GetRecentSummaries(_ context.Context, userID int64, limit int) ([]domain.SummaryRecord, error) {
	var records []domain.SummaryRecord
	for i := len(m.summaries) - 1; i >= 0 && len(records) < limit; i-- {
		if m.summaries[i].UserID == userID {
			records = append(records, m.summaries[i])
		}
	}

	return records, nil
}

type fakeFetcher struct {
	feeds     []domain.Feed
	findErr   error
	userPosts map[int64][]domain.Post
}

func (f *fakeFetcher) FindValidFeeds(context.Context, string) ([]domain.Feed, error) {
	return f.feeds, f.findErr
}

func (f *fakeFetcher) FetchUserFeeds(context.Context, int64) (map[int64][]domain.Post, error) {
	return f.userPosts, nil
}

type fakeSummarizer struct {
	summary string
	err     error
	inputs  []summarizer.Input
}

func (s *fakeSummarizer) Summarize(_ context.Context, input summarizer.Input) (string, error) {
	s.inputs = append(s.inputs, input)
	return s.summary, s.err
}

type fakeExtractor struct {
	article article.Article
	err     error
}

func (e *fakeExtractor) Extract(_ context.Context, pageURL string) (article.Article, error) {
	if e.err != nil {
		return article.Article{}, e.err
	}

	a := e.article
	a.URL = pageURL

	return a, nil
}

type testBot struct {
	*Bot
	sender     *fakeSender
	store      *memoryStore
	fetcher    *fakeFetcher
	summarizer *fakeSummarizer
	extractor  *fakeExtractor
}

func newTestBot(allowedUsers ...int64) *testBot {
	tb := &testBot{
		sender:     &fakeSender{},
		store:      &memoryStore{},
		fetcher:    &fakeFetcher{},
		summarizer: &fakeSummarizer{summary: "A short summary."},
		extractor:  &fakeExtractor{article: article.Article{Title: "Big News", Text: "Article body."}},
	}

	tb.Bot = newBot(tb.sender, Deps{
		Store:        tb.store,
		Fetcher:      tb.fetcher,
		Summarizer:   tb.summarizer,
		Extractor:    tb.extractor,
		Model:        "test-model",
		AllowedUsers: allowedUsers,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return tb
}

func (tb *testBot) send(text string) {
	tb.handleUpdate(context.Background(), nil, &models.Update{
		Message: &models.Message{
			ID:   1,
			From: &models.User{ID: testUserID, Username: "reader"},
			Chat: models.Chat{ID: testChatID, Type: "private"},
			Text: text,
		},
	})
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text    string
		command string
		args    string
	}{
		{text: "/start", command: "/start"},
		{text: "/add@summarybot https://example.com/rss", command: "/add", args: "https://example.com/rss"},
		{text: "  /HOUR   7 ", command: "/hour", args: "7"},
		{text: "plain text /add", args: "plain text /add"},
		{text: "https://example.com/a", args: "https://example.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			command, args := parseCommand(tt.text)
			assert.Equal(t, tt.command, command)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestDisallowedUserIsIgnored(t *testing.T) {
	tb := newTestBot(1, 2)

	tb.send("/start")

	assert.Empty(t, tb.sender.texts())
}

func TestAllowedUserGetsReply(t *testing.T) {
	tb := newTestBot(testUserID)

	tb.send("/help")

	assert.Contains(t, tb.sender.lastText(t), "Welcome to Summarybot")
	params := tb.sender.messages[0]
	assert.Equal(t, testChatID, params.ChatID)
	assert.Equal(t, models.ParseModeMarkdown, params.ParseMode)
}

func TestUnknownCommand(t *testing.T) {
	tb := newTestBot()

	tb.send("/frobnicate")

	assert.Contains(t, tb.sender.lastText(t), "Unknown command")
}

func TestSummarizePlainText(t *testing.T) {
	tb := newTestBot()

	tb.send("Some article text. It goes on.")

	require.Len(t, tb.summarizer.inputs, 1)
	assert.Equal(t, summarizer.Input{Text: "Some article text. It goes on."}, tb.summarizer.inputs[0])
	assert.Equal(t, `A short summary\.`, tb.sender.lastText(t))

	require.Len(t, tb.store.summaries, 1)
	record := tb.store.summaries[0]
	assert.Equal(t, testUserID, record.UserID)
	assert.Equal(t, "text", record.Source)
	assert.Equal(t, "test-model", record.Model)
	assert.Equal(t, "A short summary.", record.Summary)
}

func TestSummarizeLink(t *testing.T) {
	tb := newTestBot()

	tb.send("https://example.com/news")

	require.Len(t, tb.summarizer.inputs, 1)
	assert.Equal(t, summarizer.Input{Text: "Article body.", SourceURL: "https://example.com/news"}, tb.summarizer.inputs[0])
	assert.Equal(t, "📝 *[Big News](https://example.com/news)*\n\nA short summary\\.", tb.sender.lastText(t))

	require.Len(t, tb.store.summaries, 1)
	assert.Equal(t, "https://example.com/news", tb.store.summaries[0].Source)
}

func TestSummarizeLinkLongHeader(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		url      string
		contains string
	}{
		{
			name:     "long title",
			title:    strings.Repeat("Big News ", 1000),
			url:      "https://example.com/news",
			contains: "\\.\\.\\.](https://example.com/news)*",
		},
		{
			name:     "long URL",
			title:    "Big News",
			url:      "https://example.com/" + strings.Repeat("n", 3000),
			contains: "📝 *Big News*\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot()
			tb.extractor.article.Title = tt.title

			tb.send(tt.url)

			reply := tb.sender.lastText(t)
			assert.LessOrEqual(t, len(reply), 4096)
			assert.Contains(t, reply, tt.contains)
			assert.True(t, strings.HasSuffix(reply, "A short summary\\."))
		})
	}
}

func TestSummaryReplyCutsLongSummary(t *testing.T) {
	reply := summaryReply("Title", "https://example.com/a", strings.Repeat("a.", 3000))

	assert.LessOrEqual(t, len(reply), 4096)
	assert.True(t, strings.HasPrefix(reply, "📝 *[Title](https://example.com/a)*\n\n"))
	assert.True(t, strings.HasSuffix(reply, "\\.\\.\\."))
}

func TestSummarizeLinkExtractionFailure(t *testing.T) {
	tb := newTestBot()
	tb.extractor.err = article.ErrNoArticleText

	tb.send("https://example.com/news")

	assert.Empty(t, tb.summarizer.inputs)
	assert.Contains(t, tb.sender.lastText(t), "Could not read an article")
	assert.Empty(t, tb.store.summaries)
}

func TestEmptyMessageIsNotSummarized(t *testing.T) {
	tb := newTestBot()

	tb.send("   ")

	assert.Empty(t, tb.summarizer.inputs)
	assert.Contains(t, tb.sender.lastText(t), "Send me an article")
}

func TestSummaryErrorReplies(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name:     "authentication",
			err:      &summarizer.AuthenticationError{StatusCode: http.StatusUnauthorized},
			contains: []string{"🔑", "401", "x\\-api\\-key"},
		},
		{
			name: "authorization",
			err: &summarizer.AuthorizationError{
				StatusCode: http.StatusForbidden,
				Model:      "claude-x",
				Suggested:  summarizer.SuggestedModel,
			},
			contains: []string{"⛔", "403", "claude\\-x", "claude\\-3\\-haiku\\-20240307"},
		},
		{
			name:     "upstream",
			err:      &summarizer.UpstreamError{StatusCode: http.StatusInternalServerError, Body: "internal error"},
			contains: []string{"⚠️", "500", "internal error"},
		},
		{
			name:     "timeout",
			err:      &summarizer.TimeoutError{Err: context.DeadlineExceeded},
			contains: []string{"⏱"},
		},
		{
			name:     "transport",
			err:      &summarizer.TransportError{Err: errors.New("connection refused")},
			contains: []string{"🌐"},
		},
		{
			name:     "parse",
			err:      &summarizer.ParseError{Body: "{}", Err: errors.New("no content")},
			contains: []string{"🤷"},
		},
		{
			name:     "other",
			err:      errors.New("boom"),
			contains: []string{"❌"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot()
			tb.summarizer.err = tt.err

			tb.send("Some text")

			reply := tb.sender.lastText(t)
			for _, want := range tt.contains {
				assert.Contains(t, reply, want)
			}
			assert.Empty(t, tb.store.summaries)
		})
	}
}

func TestAddCommand(t *testing.T) {
	tb := newTestBot()
	tb.fetcher.feeds = []domain.Feed{{URL: "https://example.com/rss", Title: "Example"}}

	tb.send("/add https://example.com/rss")

	assert.Equal(t, `✅ Success\.`, tb.sender.lastText(t))
	require.Len(t, tb.store.feeds, 1)
	assert.Equal(t, testUserID, tb.store.feeds[0].UserID)
}

func TestAddCommandPartialSuccess(t *testing.T) {
	tb := newTestBot()
	tb.fetcher.feeds = []domain.Feed{{URL: "https://example.com/rss", Title: "Example"}}
	tb.fetcher.findErr = errors.New("validate feed: not a feed")

	tb.send("/add https://example.com/rss https://example.com/page")

	assert.Contains(t, tb.sender.lastText(t), "Partial success \\(1 added\\)")
}

func TestAddCommandWithoutFeeds(t *testing.T) {
	tb := newTestBot()

	tb.send("/add")

	assert.Contains(t, tb.sender.lastText(t), "Valid feed URLs are not found")
}

func TestAddCommandStoreFailure(t *testing.T) {
	tb := newTestBot()
	tb.fetcher.feeds = []domain.Feed{{URL: "https://example.com/rss", Title: "Example"}}
	tb.store.failAdd = true

	tb.send("/add https://example.com/rss")

	assert.Equal(t, `❌ Failed\.`, tb.sender.lastText(t))
}

func TestListAndRemoveCommands(t *testing.T) {
	tb := newTestBot()

	tb.send("/list")
	assert.Contains(t, tb.sender.lastText(t), "Feed list is empty")

	require.NoError(t, tb.store.AddFeed(context.Background(), testUserID, "https://example.com/rss", "Example.com"))
	require.NoError(t, tb.store.AddFeed(context.Background(), 99, "https://other.example.com/rss", "Other"))

	tb.send("/list")
	list := tb.sender.lastText(t)
	assert.Contains(t, list, "Found 1 feeds")
	assert.Contains(t, list, `1\. [Example\.com](https://example.com/rss) \(id 1\)`)

	tb.send("/remove abc")
	assert.Contains(t, tb.sender.lastText(t), "Usage: /remove")

	tb.send("/remove 2")
	assert.Contains(t, tb.sender.lastText(t), "Feed 2 is not in your list")

	tb.send("/remove 1")
	assert.Equal(t, `✅ Feed is removed\.`, tb.sender.lastText(t))
	assert.Len(t, tb.store.feeds, 1)
}

func TestHourCommand(t *testing.T) {
	tb := newTestBot()

	tb.send("/hour")
	assert.Contains(t, tb.sender.lastText(t), "sent at 00:00 UTC")

	tb.send("/hour 7")
	assert.Contains(t, tb.sender.lastText(t), "sent at 07:00 UTC")
	assert.Equal(t, int64(7), tb.store.settings[testUserID])

	tb.send("/hour 24")
	assert.Contains(t, tb.sender.lastText(t), "Usage: /hour")
	assert.Equal(t, int64(7), tb.store.settings[testUserID])
}

func TestHistoryCommand(t *testing.T) {
	tb := newTestBot()

	tb.send("/history")
	assert.Contains(t, tb.sender.lastText(t), "History is empty")

	tb.send("https://example.com/news")
	tb.send("Plain text article.")

	tb.send("/history")
	history := tb.sender.lastText(t)
	assert.Contains(t, history, "Recent summaries")
	assert.Contains(t, history, `1\. text`)
	assert.Contains(t, history, `2\. [https://example\.com/news](https://example.com/news)`)
	assert.Regexp(t, `_(now|\d+ seconds? ago)_`, history)
}

func TestDigestCommand(t *testing.T) {
	tb := newTestBot()

	tb.send("/digest")
	assert.Contains(t, tb.sender.lastText(t), "No new posts")

	tb.fetcher.userPosts = map[int64][]domain.Post{
		testUserID: {{
			Title:     "Post",
			URL:       "https://example.com/post",
			Summary:   "Post summary.",
			FeedID:    1,
			FeedTitle: "Example",
			FeedURL:   "https://example.com/rss",
		}},
	}

	tb.send("/digest")
	digest := tb.sender.lastText(t)
	assert.Contains(t, digest, "New posts")
	assert.Contains(t, digest, "– [Post](https://example.com/post)\nPost summary\\.")
}
