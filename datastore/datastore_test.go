package datastore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *Store, name, email string, sentAt time.Time, readAt *time.Time) int64 {
	t.Helper()
	row := notificationRow{
		Name:    name,
		Email:   email,
		Phone:   "+55 11 99999-0000",
		Body:    "body of " + name,
		Subject: "subject of " + name,
		SentAt:  sentAt,
		ReadAt:  readAt,
	}
	require.NoError(t, s.db.Create(&row).Error)
	return row.ID
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return base }
	ctx := context.Background()

	created, err := s.Create(ctx, &notifier.CreateRequest{
		Name:    "Ana",
		Email:   "ana@example.com",
		Phone:   "123",
		Body:    "Olá",
		Subject: "Pedido",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Nil(t, created.ReadAt)
	assert.True(t, created.SentAt.Equal(base))

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "Pedido", got.Subject)

	_, err = s.Get(ctx, 9999)
	assert.True(t, notifier.IsNotFound(err))
}

func TestFindManyFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	read := base.Add(time.Hour)

	seed(t, s, "Ana", "ana@example.com", base.Add(-48*time.Hour), nil)
	seed(t, s, "Bruno", "bruno@example.com", base.Add(-2*time.Hour), &read)
	seed(t, s, "Carla", "carla@shop.com", base.Add(-1*time.Hour), nil)

	all, err := s.FindMany(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Carla", all[0].Name, "newest first")
	assert.Equal(t, "Ana", all[2].Name)

	from := base.Add(-24 * time.Hour)
	recent, err := s.FindMany(ctx, Filter{SentFrom: &from, SentBefore: &base})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	unread, err := s.FindMany(ctx, Filter{UnreadOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Carla", unread[0].Name)

	search, err := s.FindMany(ctx, Filter{Search: "shop"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "Carla", search[0].Name)

	byID, err := s.FindMany(ctx, Filter{IDs: []int64{all[0].ID, all[2].ID}})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, "Carla", byID[0].Name)
	assert.Equal(t, "Ana", byID[1].Name)

	page, err := s.FindMany(ctx, Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Ana", page[0].Name)

	n, err := s.Count(ctx, Filter{UnreadOnly: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestUpdateMany(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	earlier := base.Add(-30 * time.Minute)

	a := seed(t, s, "Ana", "ana@example.com", base.Add(-time.Hour), nil)
	b := seed(t, s, "Bruno", "bruno@example.com", base.Add(-time.Hour), &earlier)
	c := seed(t, s, "Carla", "carla@example.com", base.Add(-time.Hour), nil)

	updated, err := s.UpdateMany(ctx, []int64{a, b}, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated, "already-read rows are not touched")

	gotA, err := s.Get(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, gotA.ReadAt)
	assert.True(t, gotA.ReadAt.Equal(base))

	gotB, err := s.Get(ctx, b)
	require.NoError(t, err)
	assert.True(t, gotB.ReadAt.Equal(earlier), "read_at is never overwritten")

	gotC, err := s.Get(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, gotC.ReadAt)

	again, err := s.UpdateMany(ctx, []int64{a, b}, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, again)

	none, err := s.UpdateMany(ctx, nil, base)
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestUpdateManyNeverPrecedesSentAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	future := base.Add(2 * time.Hour)

	id := seed(t, s, "Ana", "ana@example.com", future, nil)
	_, err := s.UpdateMany(ctx, []int64{id}, base)
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.ReadAt)
	assert.False(t, got.ReadAt.Before(got.SentAt))
}

func TestMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := seed(t, s, "Ana", "ana@example.com", base.Add(-time.Hour), nil)

	got, err := s.MarkRead(ctx, id, base)
	require.NoError(t, err)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(base))

	_, err = s.MarkRead(ctx, id, base.Add(time.Minute))
	assert.True(t, notifier.IsConflict(err))

	_, err = s.MarkRead(ctx, 4242, base)
	assert.True(t, notifier.IsNotFound(err))
}
