package notify_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainreminder/trainreminder/internal/notify"
)

func TestDepartureMessage(t *testing.T) {
	tests := []struct {
		name      string
		departure time.Time
		expected  string
	}{
		{
			name:      "morning with offset",
			departure: time.Date(2024, 5, 1, 8, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
			expected:  "Train departs at 08:00. Time to leave now.",
		},
		{
			name:      "afternoon uses 24-hour clock",
			departure: time.Date(2024, 5, 1, 17, 42, 30, 0, time.UTC),
			expected:  "Train departs at 17:42. Time to leave now.",
		},
		{
			name:      "midnight",
			departure: time.Date(2024, 5, 2, 0, 5, 0, 0, time.UTC),
			expected:  "Train departs at 00:05. Time to leave now.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, notify.DepartureMessage(tt.departure))
		})
	}
}

func TestDepartureMessage_KeepsDepartureOffset(t *testing.T) {
	departure, err := time.Parse(time.RFC3339, "2024-05-01T08:00:00+02:00")
	require.NoError(t, err)

	assert.Equal(t, "Train departs at 08:00. Time to leave now.", notify.DepartureMessage(departure))
}

func TestDesktop_Notify(t *testing.T) {
	var gotTitle, gotMessage string
	var buf bytes.Buffer

	d := notify.NewDesktopWithSender(zerolog.New(&buf), func(title, message string) error {
		gotTitle, gotMessage = title, message
		return nil
	})

	err := d.Notify(notify.Title, "Train departs at 08:00. Time to leave now.")
	require.NoError(t, err)

	assert.Equal(t, "Train Reminder", gotTitle)
	assert.Equal(t, "Train departs at 08:00. Time to leave now.", gotMessage)
	assert.Contains(t, buf.String(), "notification sent")
}

func TestDesktop_NotifyError(t *testing.T) {
	d := notify.NewDesktopWithSender(zerolog.Nop(), func(_, _ string) error {
		return errors.New("no notification daemon")
	})

	err := d.Notify(notify.Title, "message")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no notification daemon")
}

func TestLog_Notify(t *testing.T) {
	var buf bytes.Buffer
	l := notify.NewLog(zerolog.New(&buf))

	require.NoError(t, l.Notify(notify.Title, "Train departs at 08:00. Time to leave now."))
	assert.Contains(t, buf.String(), "Train departs at 08:00. Time to leave now.")
	assert.Contains(t, buf.String(), `"title":"Train Reminder"`)
}

func TestNotifiers_ImplementInterface(t *testing.T) {
	var _ notify.Notifier = notify.NewDesktop(zerolog.Nop())
	var _ notify.Notifier = notify.NewLog(zerolog.Nop())
}
