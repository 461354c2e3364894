package citethread

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all environment variables
var Config struct {
	GmailAccessToken string
	CrossRefMailto   string
	OpenAIAPIKey     string
	AlertLookback    time.Duration
}

// NewLogger builds the console logger a command owns and passes into the
// engine components it calls.
func NewLogger(component string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
