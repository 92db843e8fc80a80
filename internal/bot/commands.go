package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"summarybot/internal/domain"
	"summarybot/internal/markdown"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot/models"
)

const (
	hoursPerDay          = 24
	historyLimit         = 5
	historySummaryMaxLen = 300
)

var errInvalidHour = errors.New("hour must be between 0 and 23")

const welcomeText = `🤖 *Welcome to Summarybot\!*

Send me an article link or paste the article text and I will reply with a short neutral summary\.

I can also follow RSS / Atom / JSON feeds and send you a daily digest with summaries:

/add <feed urls> – follow feeds
/list – show followed feeds
/remove <id> – unfollow a feed
/digest – 24h digest right now
/hour <0\-23> – auto\-digest hour in UTC \(default 0\)
/history – your recent summaries`

const hourText = `*⚙️ Auto\-digest hour*

Current UTC time is %s\.

Auto\-digest is sent at %02d:00 UTC\. Change it with /hour <0\-23>\.`

// parseCommand splits "/cmd@botname args" into "/cmd" and "args".
// Text that is not a command yields an empty command.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	command, args, _ := strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")

	return strings.ToLower(command), strings.TrimSpace(args)
}

func (b *Bot) handleMessage(ctx context.Context, message *models.Message) error {
	chatID := message.Chat.ID
	userID := message.From.ID

	return b.withSpinner(ctx, chatID, func() error {
		command, args := parseCommand(message.Text)

		switch command {
		case "":
			return b.handleSummaryRequest(ctx, args, chatID, userID)
		case "/start", "/help":
			return b.sendMessage(ctx, chatID, welcomeText)
		case "/add":
			return b.handleAddCommand(ctx, args, chatID, userID)
		case "/list":
			return b.handleListCommand(ctx, chatID, userID)
		case "/remove":
			return b.handleRemoveCommand(ctx, args, chatID, userID)
		case "/digest":
			return b.handleDigestCommand(ctx, chatID, userID)
		case "/hour":
			return b.handleHourCommand(ctx, args, chatID, userID)
		case "/history":
			return b.handleHistoryCommand(ctx, chatID, userID)
		default:
			return b.sendMessage(ctx, chatID, "✖️ Unknown command\\. See /help\\.")
		}
	})
}

// replyFailure sends a failure reply and joins its error with cause.
func (b *Bot) replyFailure(ctx context.Context, chatID int64, text string, cause error) error {
	errs := []error{cause}

	if err := b.sendMessage(ctx, chatID, text); err != nil {
		errs = append(errs, fmt.Errorf("send message: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) handleAddCommand(
	ctx context.Context,
	text string,
	chatID int64,
	userID int64,
) error {
	feeds, err := b.fetcher.FindValidFeeds(ctx, text)

	if len(feeds) == 0 {
		var cause error
		if err != nil {
			cause = fmt.Errorf("find valid feeds: %w", err)
		}

		return b.replyFailure(ctx, chatID, "✖️ Valid feed URLs are not found\\. Usage: /add <feed urls>", cause)
	}

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("find valid feeds: %w", err))
	}

	added := 0
	for _, f := range feeds {
		if err = b.db.AddFeed(ctx, userID, f.URL, f.Title); err != nil {
			errs = append(errs, fmt.Errorf("add feed: %w", err))
		} else {
			added++
		}
	}

	reply := "✅ Success\\."
	switch {
	case added == 0:
		reply = "❌ Failed\\."
	case len(errs) > 0:
		reply = fmt.Sprintf("⚠️ Partial success \\(%d added\\)\\.", added)
	}

	if err = b.sendMessage(ctx, chatID, reply); err != nil {
		errs = append(errs, fmt.Errorf("send message: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) handleListCommand(ctx context.Context, chatID int64, userID int64) error {
	feeds, err := b.db.GetUserFeeds(ctx, userID)
	if err != nil {
		return b.replyFailure(ctx, chatID, "❌ Failed\\.", fmt.Errorf("get user feeds: %w", err))
	}

	if len(feeds) == 0 {
		return b.sendMessage(ctx, chatID, "✖️ Feed list is empty\\. Follow feeds with /add <feed urls>\\.")
	}

	var message strings.Builder
	fmt.Fprintf(&message, "🔍 *Found %d feeds:*\n\n", len(feeds))

	for i, f := range feeds {
		feedURL := strings.TrimSpace(f.URL)
		if feedURL == "" {
			continue
		}

		fmt.Fprintf(&message, "%d\\. %s \\(id %d\\)\n", i+1, markdown.Link(strings.TrimSpace(f.Title), feedURL), f.ID)
	}

	message.WriteString("\nUnfollow with /remove <id>\\.")

	return b.sendMessage(ctx, chatID, message.String())
}

func (b *Bot) handleRemoveCommand(
	ctx context.Context,
	args string,
	chatID int64,
	userID int64,
) error {
	feedID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return b.replyFailure(ctx, chatID, "✖️ Usage: /remove <id>\\. See /list for ids\\.", fmt.Errorf("parse feedID: %w", err))
	}

	removed, err := b.db.RemoveFeed(ctx, userID, feedID)
	if err != nil {
		return b.replyFailure(ctx, chatID, "❌ Failed\\.", fmt.Errorf("remove feed: %w", err))
	}

	if !removed {
		return b.sendMessage(ctx, chatID, fmt.Sprintf("✖️ Feed %d is not in your list\\.", feedID))
	}

	return b.sendMessage(ctx, chatID, "✅ Feed is removed\\.")
}

func (b *Bot) handleDigestCommand(ctx context.Context, chatID int64, userID int64) error {
	userPosts, err := b.fetcher.FetchUserFeeds(ctx, userID)

	if len(userPosts) == 0 {
		var cause error
		if err != nil {
			cause = fmt.Errorf("fetch user feeds: %w", err)
		}

		return b.replyFailure(ctx, chatID, "✖️ No new posts in the last 24 hours\\.", cause)
	}

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("fetch user feeds: %w", err))
	}

	for _, posts := range userPosts {
		if err = b.SendNewPosts(ctx, chatID, posts); err != nil {
			errs = append(errs, fmt.Errorf("send new posts: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (b *Bot) handleHourCommand(
	ctx context.Context,
	args string,
	chatID int64,
	userID int64,
) error {
	args = strings.TrimSpace(args)

	if args != "" {
		hourUTC, err := strconv.ParseInt(args, 10, 64)
		if err != nil || hourUTC < 0 || hourUTC >= hoursPerDay {
			return b.replyFailure(ctx, chatID, "✖️ Usage: /hour <0\\-23>\\.", fmt.Errorf("parse hourUTC %q: %w", args, errInvalidHour))
		}

		if err = b.db.UpsertUserSettings(ctx, &domain.UserSettings{
			UserID:            userID,
			AutoDigestHourUTC: hourUTC,
		}); err != nil {
			return b.replyFailure(ctx, chatID, "❌ Failed\\.", fmt.Errorf("upsert user settings: %w", err))
		}
	}

	settings, err := b.db.GetUserSettingsWithDefault(ctx, userID)
	if err != nil {
		return b.replyFailure(ctx, chatID, "❌ Failed\\.", fmt.Errorf("get user settings with default: %w", err))
	}

	currentUTC := time.Now().UTC().Format("15:04")

	return b.sendMessage(ctx, chatID, fmt.Sprintf(hourText, currentUTC, settings.AutoDigestHourUTC))
}

func (b *Bot) handleHistoryCommand(ctx context.Context, chatID int64, userID int64) error {
	records, err := b.db.GetRecentSummaries(ctx, userID, historyLimit)
	if err != nil {
		return b.replyFailure(ctx, chatID, "❌ Failed\\.", fmt.Errorf("get recent summaries: %w", err))
	}

	if len(records) == 0 {
		return b.sendMessage(ctx, chatID, "✖️ History is empty\\. Send me an article first\\.")
	}

	var message strings.Builder
	message.WriteString("🗂 *Recent summaries:*\n\n")

	for i, r := range records {
		source := markdown.Escape(r.Source)
		if strings.HasPrefix(r.Source, "http://") || strings.HasPrefix(r.Source, "https://") {
			source = markdown.Link(r.Source, r.Source)
		}

		fmt.Fprintf(&message, "%d\\. %s · _%s_\n%s\n\n",
			i+1,
			source,
			markdown.Escape(humanize.Time(r.CreatedAt)),
			markdown.Escape(markdown.Truncate(r.Summary, historySummaryMaxLen)))
	}

	return b.sendMessage(ctx, chatID, message.String())
}
