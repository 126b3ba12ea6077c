package main

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON slog.Logger on stdout whose level follows lv.
func NewLogger(lv *slog.LevelVar) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lv})
	return slog.New(h)
}

func levelFor(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
