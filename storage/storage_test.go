package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func digestFor(period notifier.Period, start, end string) *notifier.DigestResult {
	return &notifier.DigestResult{
		Digest:             "Resumo " + string(period),
		Period:             period,
		StartDate:          start,
		EndDate:            end,
		TotalNotifications: 3,
		TopSenders:         []string{"a@x.com"},
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "digests/weekly/2025-03-04_2025-03-11.json", Key(digestFor(notifier.Weekly, "2025-03-04", "2025-03-11")))
}

func TestSaveLoadLocal(t *testing.T) {
	dir := t.TempDir()
	a := New(nil, "", dir, discard)
	ctx := context.Background()

	key, err := a.Save(ctx, digestFor(notifier.Daily, "2025-03-10", "2025-03-11"))
	require.NoError(t, err)
	assert.Equal(t, "digests/daily/2025-03-10_2025-03-11.json", key)
	assert.FileExists(t, filepath.Join(dir, "digests", "daily", "2025-03-10_2025-03-11.json"))

	got, err := a.Load(ctx, notifier.Daily, "2025-03-10_2025-03-11.json")
	require.NoError(t, err)
	assert.Equal(t, "Resumo daily", got.Digest)
	assert.Equal(t, 3, got.TotalNotifications)
}

func TestLoadRejectsUnsafeNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.json"), []byte(`{}`), 0o600))
	a := New(nil, "", dir, discard)

	tests := []struct {
		period notifier.Period
		name   string
	}{
		{notifier.Daily, "../../secret.json"},
		{notifier.Daily, "2025-03-10_2025-03-11.json/../x"},
		{notifier.Period("../"), "2025-03-10_2025-03-11.json"},
		{notifier.Period("DAILY"), "2025-03-10_2025-03-11.json"},
		{notifier.Daily, "2025-03-10_2025-03-11.json"}, // valid but absent
	}
	for _, tt := range tests {
		_, err := a.Load(context.Background(), tt.period, tt.name)
		assert.True(t, IsNotFound(err), "%s/%s", tt.period, tt.name)
	}
}

func TestListLocal(t *testing.T) {
	dir := t.TempDir()
	a := New(nil, "", dir, discard)
	ctx := context.Background()

	entries, err := a.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, entries, "missing directory lists nothing")

	for _, d := range []*notifier.DigestResult{
		digestFor(notifier.Daily, "2025-03-09", "2025-03-10"),
		digestFor(notifier.Daily, "2025-03-10", "2025-03-11"),
		digestFor(notifier.Weekly, "2025-03-04", "2025-03-11"),
	} {
		_, err := a.Save(ctx, d)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "digests", "daily", "notes.txt"), []byte("x"), 0o600))

	entries, err = a.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2025-03-10_2025-03-11.json", entries[0].Name)
	assert.Equal(t, notifier.Daily, entries[0].Period)
	assert.Positive(t, entries[0].Size)

	daily, err := a.List(ctx, notifier.Daily)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	for _, e := range daily {
		assert.Equal(t, notifier.Daily, e.Period)
	}

	_, err = a.List(ctx, notifier.Period("yearly"))
	assert.True(t, notifier.IsValidation(err))
}
