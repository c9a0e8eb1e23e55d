package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no stored row matches.
var ErrNotFound = errors.New("not found")

// Attachment is an attachment payload kept by the gateway for one owner.
// Rows are keyed by (owner, uid, filename), matching /att/{uid}/{filename}.
type Attachment struct {
	Owner       string    `db:"owner"`
	UID         string    `db:"uid"`
	Filename    string    `db:"filename"`
	ContentType string    `db:"content_type"`
	Size        int64     `db:"size"`
	Data        []byte    `db:"data"`
	CreatedAt   time.Time `db:"created_at"`
}

// Store defines the persistence interface for gateway attachments.
type Store interface {
	// PutAttachment inserts or replaces the attachment.
	PutAttachment(ctx context.Context, att Attachment) error

	// GetAttachment returns the attachment or ErrNotFound.
	GetAttachment(ctx context.Context, owner, uid, filename string) (*Attachment, error)

	// PurgeAttachments deletes attachments stored before cutoff and
	// returns how many were removed.
	PurgeAttachments(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
