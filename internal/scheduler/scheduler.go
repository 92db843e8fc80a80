package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"summarybot/internal/domain"

	"github.com/robfig/cron/v3"
)

const (
	HourlyDigestSpec      = "0 * * * *"
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	checkHourFeedsTimeout = 15 * time.Minute
)

type HourFeedsFetcher interface {
	FetchHourFeeds(ctx context.Context, hourUTC int64) (map[int64][]domain.Post, error)
}

type PostsSender interface {
	SendNewPosts(ctx context.Context, chatID int64, posts []domain.Post) error
}

// Scheduler sends every user their digest at the hour they picked.
type Scheduler struct {
	ctx     context.Context
	cron    *cron.Cron
	sender  PostsSender
	fetcher HourFeedsFetcher
	now     func() time.Time
	log     *slog.Logger
}

func New(ctx context.Context, sender PostsSender, fetcher HourFeedsFetcher, log *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:     ctx,
		cron:    c,
		sender:  sender,
		fetcher: fetcher,
		now:     time.Now,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(HourlyDigestSpec, s.checkHourFeeds); err != nil {
		return fmt.Errorf("add cron func: %w", err)
	}

	s.cron.Start()

	return nil
}

// Stop stops the cron and waits for a running digest to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) checkHourFeeds() {
	ctx, cancel := context.WithTimeout(s.ctx, checkHourFeedsTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	hourUTC := int64(s.now().UTC().Hour())

	userPosts, err := s.fetcher.FetchHourFeeds(ctx, hourUTC)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to fetch hour feeds",
			"error", err,
			"hourUTC", hourUTC,
			"usersWithPosts", len(userPosts))
	}

	if ctx.Err() != nil {
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	}

	for userID, posts := range userPosts {
		if err = s.sender.SendNewPosts(ctx, userID, posts); err != nil {
			s.log.ErrorContext(ctx, "Failed to send user posts",
				"error", err,
				"hourUTC", hourUTC,
				"userID", userID,
				"postCount", len(posts),
				"feedIDs", feedIDs(posts))
		}
	}

	s.log.InfoContext(ctx, "Hour digests are sent",
		"hourUTC", hourUTC,
		"userCount", len(userPosts))
}

func feedIDs(posts []domain.Post) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64

	for _, post := range posts {
		if _, ok := seen[post.FeedID]; ok {
			continue
		}

		seen[post.FeedID] = struct{}{}
		ids = append(ids, post.FeedID)
	}

	return ids
}
