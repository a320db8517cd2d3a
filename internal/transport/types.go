// Package transport abstracts the messaging platform behind a small
// send-and-commands surface so the check pipeline never touches bot APIs.
package transport

import (
	"context"
	"fmt"
)

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the platform connection. Start begins processing user commands;
// SendText is safe to call before Start for one-shot runs.
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// DispatchError wraps a failed send. Transient failures (flood limits,
// platform 5xx, timeouts) may be retried on a later run; permanent ones
// (chat blocked the bot, bad request) must not be.
type DispatchError struct {
	ChatID    int64
	Transient bool
	Err       error
}

func (e *DispatchError) Error() string {
	state := "permanent"
	if e.Transient {
		state = "transient"
	}
	return fmt.Sprintf("dispatch to chat %d failed (%s): %v", e.ChatID, state, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
