package notify

import "github.com/rs/zerolog"

// NewDesktopWithSender lets tests replace the platform call.
func NewDesktopWithSender(logger zerolog.Logger, send func(title, message string) error) *Desktop {
	return &Desktop{logger: logger, send: send}
}
