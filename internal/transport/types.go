// Package transport holds the chat-platform types shared by the notifier and
// the command dispatcher.
package transport

import (
	"context"
	"io"
)

type UpdateKind string

const UpdateMessage UpdateKind = "message"

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic, 0 if none
	FromID   int64
	Text     string
}

// Recipient is a chat, optionally narrowed to a forum topic.
type Recipient struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	// Silent delivers without a notification sound.
	Silent bool
}

// Presence is the chat action shown while a reply is prepared.
type Presence string

const (
	PresenceTyping      Presence = "typing"
	PresenceUploadPhoto Presence = "upload_photo"
)

type Sender interface {
	SendText(ctx context.Context, to Recipient, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to Recipient, photo io.Reader, caption string, opt *SendOptions) (MessageRef, error)
	SendPresence(ctx context.Context, to Recipient, p Presence) error
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by senders that can publish the command
// list to the client menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
