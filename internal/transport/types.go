package transport

import (
	"context"
	"fmt"
	"time"
)

// PhotoSender delivers one photo, referenced by URL, to a chat.
type PhotoSender interface {
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error
}

// ChatTarget is a chat plus an optional forum thread.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// Error is returned by adapters for failed sends.
type Error struct {
	ChatID int64
	Op     string // API method, e.g. "sendPhoto"
	// Code is the platform error code when known (Telegram: HTTP-like code).
	Code int
	// RetryAfter is set for flood-control rejections.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s to %d failed (code %d): %v", e.Op, e.ChatID, e.Code, e.Err)
	}
	return fmt.Sprintf("%s to %d failed: %v", e.Op, e.ChatID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
