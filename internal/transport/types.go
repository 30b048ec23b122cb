package transport

import (
	"context"
	"fmt"
)

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// NotificationKind tags what a notification is about. It is part of the dedup key.
type NotificationKind string

const (
	KindStatus NotificationKind = "status"
	KindError  NotificationKind = "error"
)

type Notification struct {
	Kind    NotificationKind
	Target  ChatTarget
	Text    string
	Options *SendOptions
}

// Sender delivers text to a chat. The Telegram adapter is the production implementation.
//
// Delivery is at least once: a send that times out may still reach the chat,
// so a retry after a timeout can duplicate a message. Long texts go out as
// several messages; when a later one fails the error is a *PartialSendError.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// PartialSendError means the first Sent messages of a split text were
// delivered and the rest was not. Retrying with Rest avoids resending them.
type PartialSendError struct {
	Sent int
	Rest string
	Err  error
}

func (e *PartialSendError) Error() string {
	return fmt.Sprintf("sent %d message(s), rest failed: %v", e.Sent, e.Err)
}

func (e *PartialSendError) Unwrap() error { return e.Err }
