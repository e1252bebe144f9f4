package notifier

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		input   string
		want    Period
		wantErr bool
	}{
		{input: "daily", want: Daily},
		{input: " Weekly ", want: Weekly},
		{input: "MONTHLY", want: Monthly},
		{input: "yearly", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePeriod(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateRangeContains(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	r := DateRange{Start: start, End: start.AddDate(0, 0, 1)}

	assert.True(t, r.Contains(start))
	assert.True(t, r.Contains(start.Add(23*time.Hour)))
	assert.False(t, r.Contains(r.End))
	assert.False(t, r.Contains(start.Add(-time.Nanosecond)))
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", &NotFoundError{ID: 7})
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))

	ext := &ExternalServiceError{Service: "ai", Err: errors.New("timeout")}
	assert.True(t, IsExternalService(fmt.Errorf("generate: %w", ext)))
	assert.Equal(t, "ai: timeout", ext.Error())
	assert.ErrorContains(t, errors.Unwrap(ext), "timeout")

	assert.True(t, IsConflict(&ConflictError{ID: 1, Message: "already read"}))
	assert.True(t, IsUnrecognizedSchedule(&UnrecognizedScheduleError{Trigger: "*/5 * * * *"}))
	assert.Equal(t, "period: unknown", (&ValidationError{Field: "period", Message: "unknown"}).Error())
}
