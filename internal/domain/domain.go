package domain

import "time"

type Feed struct {
	URL   string
	Title string
}

type UserFeed struct {
	ID     int64
	UserID int64
	URL    string
	Title  string
}

type Post struct {
	Title     string
	URL       string
	Summary   string
	Published time.Time
	FeedID    int64
	FeedTitle string
	FeedURL   string
}

type UserSettings struct {
	UserID            int64
	AutoDigestHourUTC int64
}

// SummaryRecord is one row of the per-user summary history.
type SummaryRecord struct {
	ID        int64
	UserID    int64
	Source    string
	Model     string
	Summary   string
	CreatedAt time.Time
}
