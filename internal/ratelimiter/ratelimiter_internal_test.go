package ratelimiter

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAPI struct {
	mu      sync.Mutex
	sentAt  []time.Time
	texts   []string
	actions int
	block   chan struct{}
}

func (a *recordingAPI) SendMessage(
	_ context.Context,
	params *tgbot.SendMessageParams,
) (*models.Message, error) {
	if a.block != nil {
		<-a.block
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.sentAt = append(a.sentAt, time.Now())
	a.texts = append(a.texts, params.Text)

	return &models.Message{ID: len(a.texts), Text: params.Text}, nil
}

func (a *recordingAPI) SendChatAction(context.Context, *tgbot.SendChatActionParams) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.actions++

	return true, nil
}

func newTestLimiter(t *testing.T, api API) *RateLimiter {
	t.Helper()

	rl := New(api, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(rl.Stop)

	return rl
}

func TestGetRate(t *testing.T) {
	assert.Equal(t, privateChatRate, getRate(42))
	assert.Equal(t, groupChatRate, getRate(-100123))
}

func TestGetDelay(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		chatID   int64
		lastSent time.Time
		wantZero bool
	}{
		{"Private chat - no delay needed", 123456789, now.Add(-2 * time.Second), true},
		{"Private chat - delay needed", 123456789, now.Add(-500 * time.Millisecond), false},
		{"Group chat - no delay needed", -123456789, now.Add(-4 * time.Second), true},
		{"Group chat - delay needed", -123456789, now.Add(-1 * time.Second), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := getDelay(test.chatID, test.lastSent)

			if test.wantZero {
				assert.Zero(t, got)
			} else {
				assert.Positive(t, got)
				assert.LessOrEqual(t, got, getRate(test.chatID))
			}
		})
	}
}

func TestGetChatID(t *testing.T) {
	assert.Equal(t, int64(42), getChatID(int64(42)))
	assert.Equal(t, int64(7), getChatID(7))
	assert.Equal(t, int64(-100), getChatID("-100"))
	assert.Equal(t, int64(-1), getChatID("@channel"))
	assert.Equal(t, int64(0), getChatID(nil))
}

func TestSendMessagePacesSameChat(t *testing.T) {
	api := &recordingAPI{}
	rl := newTestLimiter(t, api)
	ctx := context.Background()

	_, err := rl.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: int64(1), Text: "first"})
	require.NoError(t, err)

	msg, err := rl.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: int64(1), Text: "second"})
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Text)

	require.Len(t, api.sentAt, 2)
	assert.GreaterOrEqual(t, api.sentAt[1].Sub(api.sentAt[0]), privateChatRate-50*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, api.texts)
}

func TestSendMessageDoesNotPaceDifferentChats(t *testing.T) {
	api := &recordingAPI{}
	rl := newTestLimiter(t, api)
	ctx := context.Background()

	start := time.Now()
	_, err := rl.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: int64(1), Text: "a"})
	require.NoError(t, err)
	_, err = rl.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: int64(2), Text: "b"})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), privateChatRate)
}

func TestSendChatActionBypassesQueue(t *testing.T) {
	api := &recordingAPI{}
	rl := newTestLimiter(t, api)

	ok, err := rl.SendChatAction(context.Background(), &tgbot.SendChatActionParams{
		ChatID: int64(1),
		Action: models.ChatActionTyping,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, api.actions)
}

func TestStopFailsPendingMessages(t *testing.T) {
	api := &recordingAPI{block: make(chan struct{})}
	rl := New(api, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	results := make(chan error, 2)
	for _, text := range []string{"in flight", "queued"} {
		go func() {
			_, err := rl.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: int64(1), Text: text})
			results <- err
		}()
	}

	require.Eventually(t, func() bool { return len(rl.queue) >= 1 }, time.Second, 5*time.Millisecond)

	rl.Stop()

	for range 2 {
		select {
		case err := <-results:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("SendMessage did not return after Stop")
		}
	}

	close(api.block)

	_, err := rl.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: int64(1), Text: "late"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSendMessageRespectsCallerContext(t *testing.T) {
	api := &recordingAPI{}
	rl := newTestLimiter(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rl.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: int64(1), Text: "never"})
	require.ErrorIs(t, err, context.Canceled)
}
