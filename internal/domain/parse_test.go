package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionTime(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		timeStr string
		want    time.Time
		wantErr bool
	}{
		{
			name:    "abbreviated month with range",
			date:    "16/Jan/2021",
			timeStr: "10:20 - 12:00",
			want:    time.Date(2021, 1, 16, 10, 20, 0, 0, time.UTC),
		},
		{
			name:    "abbreviated month with bare start time",
			date:    "16/Jan/2021",
			timeStr: "10:20",
			want:    time.Date(2021, 1, 16, 10, 20, 0, 0, time.UTC),
		},
		{
			name:    "numeric month",
			date:    "05/03/2024",
			timeStr: "09:00 - 10:40",
			want:    time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		},
		{
			name:    "range without surrounding spaces",
			date:    "01/Jan/2024",
			timeStr: "09:00-10:00",
			want:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:    "unknown month name",
			date:    "16/Janvier/2021",
			timeStr: "10:20 - 12:00",
			wantErr: true,
		},
		{
			name:    "garbage date",
			date:    "someday",
			timeStr: "10:20",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSessionTime(tt.date, tt.timeStr)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrParse)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}
