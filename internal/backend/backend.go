// Package backend talks to the mail servers behind the gateway.
package backend

import (
	"context"
	"errors"

	"github.com/nhle/mailgate/internal/model"
)

var (
	// ErrAuthFailed means the mail server rejected the login.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrFolderNotFound means the folder could not be selected.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrMessageNotFound means no message has the requested UID.
	ErrMessageNotFound = errors.New("message not found")
)

// Account is an allowed mailbox and the server hosting it.
type Account struct {
	Email  string `yaml:"email"`
	Server string `yaml:"server"`
	Port   int    `yaml:"port"`

	// TLS selects implicit TLS; otherwise STARTTLS is used.
	TLS bool `yaml:"tls"`
}

// Part is a decoded attachment with its payload.
type Part struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a full message as read from the server. Detail carries no
// attachments; the gateway builds them from Parts.
type Message struct {
	Detail model.MessageDetail
	Parts  []Part
}

// Backend performs mailbox operations on behalf of one login. Every call
// authenticates with secret; no session outlives a call.
type Backend interface {
	Folders(ctx context.Context, acct Account, secret string) ([]string, error)
	List(ctx context.Context, acct Account, secret, folder string, page, pageSize int) ([]model.MessageSummary, error)

	// Fetch returns the full message and marks it seen on the server.
	Fetch(ctx context.Context, acct Account, secret, folder, uid string) (*Message, error)
	Delete(ctx context.Context, acct Account, secret, folder, uid string) error
	Unsee(ctx context.Context, acct Account, secret, folder, uid string) error
}
