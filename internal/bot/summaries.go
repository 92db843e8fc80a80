package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"summarybot/internal/article"
	"summarybot/internal/domain"
	"summarybot/internal/markdown"
	"summarybot/internal/summarizer"
)

const (
	sourceText            = "text"
	upstreamBodyMaxLength = 300

	telegramMessageMaxLength = 4096
	replyTitleMaxLength      = 256
	// Source links longer than this are replaced by the plain title.
	replyLinkMaxLength = 1024
)

func (b *Bot) handleSummaryRequest(
	ctx context.Context,
	text string,
	chatID int64,
	userID int64,
) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return b.sendMessage(ctx, chatID, "✖️ Send me an article link or the article text\\.")
	}

	input := summarizer.Input{Text: text}
	source := sourceText
	title := ""

	if pageURL, ok := article.SingleURL(text); ok {
		a, err := b.extractor.Extract(ctx, pageURL)
		if err != nil {
			return b.replyFailure(ctx, chatID,
				"✖️ Could not read an article at this link\\.",
				fmt.Errorf("extract article: %w", err))
		}

		input = summarizer.Input{Text: a.Text, SourceURL: pageURL}
		source = pageURL
		title = a.Title
	}

	summary, err := b.summarizer.Summarize(ctx, input)
	if err != nil {
		return b.replyFailure(ctx, chatID, summaryErrorReply(err), fmt.Errorf("summarize: %w", err))
	}

	if err = b.db.AddSummary(ctx, &domain.SummaryRecord{
		UserID:  userID,
		Source:  source,
		Model:   b.model,
		Summary: summary,
	}); err != nil {
		b.log.ErrorContext(ctx, "Failed to store summary",
			"error", err,
			"userID", userID,
			"source", source)
	}

	return b.sendMessage(ctx, chatID, summaryReply(title, source, summary))
}

// summaryReply renders a summary under a header naming its source, cutting
// the title and then the summary so the message fits Telegram's limit.
func summaryReply(title string, source string, summary string) string {
	var header string
	if source != sourceText {
		title = markdown.Truncate(strings.TrimSpace(title), replyTitleMaxLength)

		link := markdown.Link(title, source)
		if len(link) > replyLinkMaxLength {
			if title == "" {
				title = markdown.Truncate(source, replyTitleMaxLength)
			}
			link = markdown.Escape(title)
		}

		header = "📝 *" + link + "*\n\n"
	}

	budget := telegramMessageMaxLength - len(header)
	runes := utf8.RuneCountInString(summary)

	for {
		body := markdown.Escape(markdown.Truncate(summary, runes))
		if len(body) <= budget || runes == 0 {
			return header + body
		}

		shrunk := runes * budget / len(body)
		if shrunk >= runes {
			shrunk = runes - 1
		}
		runes = max(shrunk, 0)
	}
}

// summaryErrorReply turns a summarizer failure into a message for the user.
func summaryErrorReply(err error) string {
	var (
		authErr      *summarizer.AuthenticationError
		accessErr    *summarizer.AuthorizationError
		upstreamErr  *summarizer.UpstreamError
		timeoutErr   *summarizer.TimeoutError
		transportErr *summarizer.TransportError
		parseErr     *summarizer.ParseError
	)

	switch {
	case errors.As(err, &authErr):
		return "🔑 " + markdown.Escape(authErr.Error())
	case errors.As(err, &accessErr):
		return "⛔ " + markdown.Escape(accessErr.Error())
	case errors.As(err, &upstreamErr):
		return "⚠️ " + markdown.Escape(fmt.Sprintf(
			"The summary service answered %d: %s",
			upstreamErr.StatusCode,
			markdown.Truncate(upstreamErr.Body, upstreamBodyMaxLength),
		))
	case errors.As(err, &timeoutErr):
		return "⏱ The summary service did not answer in time\\. Try again later\\."
	case errors.As(err, &transportErr):
		return "🌐 The summary service is unreachable\\. Try again later\\."
	case errors.As(err, &parseErr):
		return "🤷 The summary service sent an unexpected response\\."
	default:
		return "❌ Failed\\."
	}
}
