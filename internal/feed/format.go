package feed

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"summarybot/internal/domain"
	"summarybot/internal/markdown"
)

const (
	telegramMessageMaxLength = 4096

	// Links longer than this are rendered as plain text.
	linkMaxLength = 1024
	// Post and feed titles are cut to this many runes.
	titleMaxLength = 256

	digestHeader         = "📰 *New posts*\n\n"
	digestContinueHeader = "📰 *New posts \\(continue\\)*\n\n"
)

type feedGroupKey struct {
	FeedID    int64
	FeedTitle string
	FeedURL   string
}

// FormatPostsAsMessages renders posts as MarkdownV2 messages grouped by
// feed, each within the Telegram message length limit.
func FormatPostsAsMessages(ctx context.Context, posts []domain.Post, log *slog.Logger) []string {
	var messages []string
	var currentMessage strings.Builder

	currentMessage.WriteString(digestHeader)
	headerLength := currentMessage.Len()

	feedGroups := make(map[feedGroupKey][]domain.Post)

	for _, post := range posts {
		normalized, ok := normalizePost(ctx, post, log)
		if !ok {
			continue
		}

		key := feedGroupKey{
			FeedID:    normalized.FeedID,
			FeedTitle: normalized.FeedTitle,
			FeedURL:   normalized.FeedURL,
		}
		feedGroups[key] = append(feedGroups[key], normalized)
	}

	feedGroupKeys := slices.SortedFunc(
		maps.Keys(feedGroups),
		func(a, b feedGroupKey) int { return cmp.Compare(a.FeedID, b.FeedID) },
	)

	for _, key := range feedGroupKeys {
		feedPosts := feedGroups[key]

		feedHeader := formatFeedHeader(key)
		bulletLimit := telegramMessageMaxLength - len(digestContinueHeader) - len(feedHeader)
		firstBulletPoint := bulletPoint(feedPosts[0], bulletLimit)

		if currentMessage.Len() > headerLength &&
			currentMessage.Len()+
				len(feedHeader)+
				len(firstBulletPoint) > telegramMessageMaxLength {
			messages = append(messages, currentMessage.String())
			currentMessage.Reset()
			currentMessage.WriteString(digestContinueHeader)
			headerLength = currentMessage.Len()
		}

		currentMessage.WriteString(feedHeader)
		groupStart := currentMessage.Len()

		for _, post := range feedPosts {
			point := bulletPoint(post, bulletLimit)

			if currentMessage.Len() > groupStart &&
				currentMessage.Len()+len(point) > telegramMessageMaxLength {
				messages = append(messages, currentMessage.String())
				currentMessage.Reset()
				currentMessage.WriteString(digestContinueHeader)
				headerLength = currentMessage.Len()
				currentMessage.WriteString(feedHeader)
				groupStart = currentMessage.Len()
			}

			currentMessage.WriteString(point)
		}
	}

	if currentMessage.Len() > headerLength {
		messages = append(messages, currentMessage.String())
	}

	return messages
}

func formatFeedHeader(key feedGroupKey) string {
	header := fmt.Sprintf("📌 *%s*\n\n", markdown.Link(key.FeedTitle, key.FeedURL))
	if len(header) > linkMaxLength {
		header = fmt.Sprintf("📌 *%s*\n\n", markdown.Escape(key.FeedTitle))
	}

	return header
}

// bulletPoint renders a post as a list item no longer than limit bytes,
// cutting the summary first and the link second.
func bulletPoint(post domain.Post, limit int) string {
	head := "– " + markdown.Link(post.Title, post.URL) + "\n"
	if len(head) > linkMaxLength {
		head = "– " + markdown.Escape(post.Title) + "\n"
	}

	summary := strings.TrimSpace(post.Summary)
	if summary == "" || summary == post.Title {
		return head + "\n"
	}

	budget := limit - len(head) - len("\n\n")
	runes := utf8.RuneCountInString(summary)

	for runes > 0 {
		escaped := markdown.Escape(markdown.Truncate(summary, runes))
		if len(escaped) <= budget {
			return head + escaped + "\n\n"
		}

		shrunk := runes * budget / len(escaped)
		if shrunk >= runes {
			shrunk = runes - 1
		}
		runes = shrunk
	}

	return head + "\n"
}

func normalizePost(ctx context.Context, post domain.Post, log *slog.Logger) (domain.Post, bool) {
	normalized := post

	normalized.Title = strings.TrimSpace(post.Title)
	normalized.URL = strings.TrimSpace(post.URL)
	normalized.FeedTitle = strings.TrimSpace(post.FeedTitle)
	normalized.FeedURL = strings.TrimSpace(post.FeedURL)

	switch {
	case normalized.FeedURL == "" && normalized.URL != "":
		normalized.FeedURL = normalized.URL
	case normalized.URL == "" && normalized.FeedURL != "":
		normalized.URL = normalized.FeedURL
	case normalized.URL == "" && normalized.FeedURL == "":
		log.WarnContext(ctx, "Skipping post with empty URLs",
			"feedID", post.FeedID,
			"title", normalized.Title)

		return domain.Post{}, false
	}

	if normalized.FeedTitle == "" {
		log.WarnContext(ctx, "Empty feed title",
			"feedID", post.FeedID,
			"feedURL", normalized.FeedURL,
			"postURL", normalized.URL)

		normalized.FeedTitle = normalized.FeedURL
	}

	if normalized.Title == "" {
		normalized.Title = normalized.URL
	}

	normalized.Title = markdown.Truncate(normalized.Title, titleMaxLength)
	normalized.FeedTitle = markdown.Truncate(normalized.FeedTitle, titleMaxLength)

	return normalized, true
}
