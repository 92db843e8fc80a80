package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"summarybot/internal/article"
	"summarybot/internal/domain"
	"summarybot/internal/feed"
	"summarybot/internal/ratelimiter"
	"summarybot/internal/summarizer"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const updateProcessingTimeout = 5 * time.Minute

// Store is the persistence the bot commands need.
type Store interface {
	AddFeed(ctx context.Context, userID int64, feedURL string, feedTitle string) error
	RemoveFeed(ctx context.Context, userID int64, feedID int64) (bool, error)
	GetUserFeeds(ctx context.Context, userID int64) ([]domain.UserFeed, error)
	GetUserSettingsWithDefault(ctx context.Context, userID int64) (*domain.UserSettings, error)
	UpsertUserSettings(ctx context.Context, userSettings *domain.UserSettings) error
	AddSummary(ctx context.Context, record *domain.SummaryRecord) error
	GetRecentSummaries(ctx context.Context, userID int64, limit int) ([]domain.SummaryRecord, error)
}

type FeedFetcher interface {
	FindValidFeeds(ctx context.Context, text string) ([]domain.Feed, error)
	FetchUserFeeds(ctx context.Context, userID int64) (map[int64][]domain.Post, error)
}

type ArticleExtractor interface {
	Extract(ctx context.Context, pageURL string) (article.Article, error)
}

// Sender delivers replies. The rate limiter implements it in production.
type Sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *tgbot.SendChatActionParams) (bool, error)
}

// Deps are the collaborators the bot dispatches to.
type Deps struct {
	Store        Store
	Fetcher      FeedFetcher
	Summarizer   summarizer.Summarizer
	Extractor    ArticleExtractor
	Model        string
	AllowedUsers []int64
}

type Bot struct {
	client       *tgbot.Bot
	rateLimiter  *ratelimiter.RateLimiter
	sender       Sender
	db           Store
	fetcher      FeedFetcher
	summarizer   summarizer.Summarizer
	extractor    ArticleExtractor
	model        string
	allowedUsers []int64
	log          *slog.Logger
}

func New(token string, deps Deps, log *slog.Logger) (*Bot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("token is empty")
	}

	b := newBot(nil, deps, log)

	client, err := tgbot.New(
		token,
		tgbot.WithDefaultHandler(b.handleUpdate),
		tgbot.WithErrorsHandler(func(err error) {
			log.Error("Telegram polling failed",
				"error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	b.client = client
	b.rateLimiter = ratelimiter.New(client, log)
	b.sender = b.rateLimiter

	return b, nil
}

func newBot(sender Sender, deps Deps, log *slog.Logger) *Bot {
	return &Bot{
		sender:       sender,
		db:           deps.Store,
		fetcher:      deps.Fetcher,
		summarizer:   deps.Summarizer,
		extractor:    deps.Extractor,
		model:        deps.Model,
		allowedUsers: deps.AllowedUsers,
		log:          log,
	}
}

// Start long-polls Telegram until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	b.client.Start(ctx)

	b.log.InfoContext(ctx, "Bot context is done",
		"error", ctx.Err())
}

func (b *Bot) Stop() {
	if b.rateLimiter != nil {
		b.rateLimiter.Stop()
	}
}

func (b *Bot) handleUpdate(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	updateCtx, cancel := context.WithTimeout(ctx, updateProcessingTimeout)
	defer cancel()

	message := update.Message
	chatID := message.Chat.ID

	if message.From == nil {
		return
	}

	userID := message.From.ID
	if !b.userAllowed(userID) {
		b.log.DebugContext(updateCtx, "User is not allowed",
			"userID", userID,
			"chatID", chatID,
			"username", message.From.Username,
			"chatType", message.Chat.Type)

		return
	}

	if err := b.handleMessage(updateCtx, message); err != nil {
		b.log.ErrorContext(updateCtx, "Failed to handle message",
			"error", err,
			"chatID", chatID,
			"userID", userID,
			"chatType", message.Chat.Type,
			"messageID", message.ID)
	}
}

func (b *Bot) userAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || slices.Contains(b.allowedUsers, userID)
}

// SendNewPosts delivers a digest as one or more messages.
func (b *Bot) SendNewPosts(ctx context.Context, chatID int64, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	var errs []error

	for _, message := range feed.FormatPostsAsMessages(ctx, posts, b.log) {
		if err := b.sendMessage(ctx, chatID, message); err != nil {
			errs = append(errs, fmt.Errorf("send message: %w", err))
		}
	}

	return errors.Join(errs...)
}
