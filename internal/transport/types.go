package transport

import (
	"context"
	"errors"
)

// ErrRecipientGone marks a permanent delivery failure: the recipient has
// blocked the bot, deleted their account, or the chat no longer exists.
// Senders should stop targeting the recipient; retrying cannot succeed.
var ErrRecipientGone = errors.New("recipient unreachable (permanent)")

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FirstName    string
	LastName     string
	Text         string
}

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

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
