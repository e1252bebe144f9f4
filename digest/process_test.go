package digest

import (
	"context"
	"testing"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUnread(store *memStore, count int) {
	for i := range count {
		store.add(notifier.Notification{
			ID:      int64(i + 1),
			Name:    "Remetente",
			Email:   "r@x.com",
			Subject: "Pedido",
			SentAt:  fixedNow.Add(-time.Duration(i) * time.Minute),
		})
	}
}

func TestProcessUnreadMarksFetchedIDs(t *testing.T) {
	store := &memStore{}
	seedUnread(store, 15)
	fc := &fakeCompleter{text: "Resumo"}

	got, err := newEngine(store, fc).ProcessUnread(context.Background(), ProcessOptions{
		MarkAsRead:     true,
		IncludeSummary: true,
	})
	require.NoError(t, err)

	assert.Len(t, got.NotificationsProcessed, DefaultMaxNotifications)
	assert.Equal(t, int64(15), got.TotalUnread)
	assert.Equal(t, int64(DefaultMaxNotifications), got.MarkedAsRead)
	assert.Equal(t, "Resumo", got.Summary)
	assert.Equal(t, []string{"Remetente"}, got.Insights.MostCommonSenders)
	assert.Equal(t, map[string]int{"Vendas": 10}, got.Insights.Categories)

	require.Len(t, store.updateCalls, 1)
	assert.Len(t, store.updateCalls[0], DefaultMaxNotifications)
	for _, n := range got.NotificationsProcessed {
		assert.NotNil(t, n.ReadAt)
	}
	assert.Nil(t, store.get(15).ReadAt, "outside the batch stays unread")
}

func TestProcessUnreadAnalyzeNeverMarks(t *testing.T) {
	store := &memStore{}
	seedUnread(store, 3)
	fc := &fakeCompleter{text: "Resumo"}

	got, err := newEngine(store, fc).ProcessUnread(context.Background(), ProcessOptions{
		Action:     ActionAnalyze,
		MarkAsRead: true,
	})
	require.NoError(t, err)
	assert.Zero(t, got.MarkedAsRead)
	assert.Empty(t, store.updateCalls)
	assert.Empty(t, fc.calls, "summary not requested")
}

func TestProcessUnreadClampsLimit(t *testing.T) {
	store := &memStore{}
	seedUnread(store, 70)

	got, err := newEngine(store, &fakeCompleter{}).ProcessUnread(context.Background(), ProcessOptions{MaxNotifications: 500})
	require.NoError(t, err)
	assert.Len(t, got.NotificationsProcessed, MaxNotificationsLimit)
}

func TestProcessUnreadEmpty(t *testing.T) {
	fc := &fakeCompleter{}
	got, err := newEngine(&memStore{}, fc).ProcessUnread(context.Background(), ProcessOptions{IncludeSummary: true, MarkAsRead: true})
	require.NoError(t, err)
	assert.Empty(t, got.NotificationsProcessed)
	assert.NotEmpty(t, got.Summary)
	assert.Empty(t, fc.calls)
}

func TestProcessUnreadUnknownAction(t *testing.T) {
	_, err := newEngine(&memStore{}, &fakeCompleter{}).ProcessUnread(context.Background(), ProcessOptions{Action: "delete"})
	assert.True(t, notifier.IsValidation(err))
}
