package loader

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/model"
)

// Saver turns downloaded bytes into an artifact the user can retrieve and
// returns where it ended up. It must release any temporary resource it
// allocates.
type Saver interface {
	Save(ctx context.Context, filename string, data []byte) (string, error)
}

// AttachmentRetriever downloads attachments and hands them to a Saver.
type AttachmentRetriever struct {
	client Requester
	saver  Saver
	log    zerolog.Logger
}

// NewAttachmentRetriever creates a retriever backed by client and saver.
func NewAttachmentRetriever(
	client Requester, saver Saver, log zerolog.Logger,
) *AttachmentRetriever {
	return &AttachmentRetriever{client: client, saver: saver, log: log}
}

// Fetch downloads the raw bytes behind link.
func (r *AttachmentRetriever) Fetch(
	ctx context.Context, link string, creds model.Credentials,
) ([]byte, error) {
	resp, err := r.client.Get(ctx, link, creds)
	if err != nil {
		return nil, fmt.Errorf("fetching attachment %s: %w", link, err)
	}
	data, err := resp.Bytes()
	if err != nil {
		return nil, fmt.Errorf("fetching attachment %s: %w", link, err)
	}
	return data, nil
}

// Retrieve downloads att and saves it under its original filename. An
// attachment without filename or link is skipped without a request and
// yields an empty location.
func (r *AttachmentRetriever) Retrieve(
	ctx context.Context, att model.Attachment, creds model.Credentials,
) (string, error) {
	if !att.Downloadable() {
		r.log.Debug().Str("filename", att.Filename).Msg("Skipping attachment without link")
		return "", nil
	}

	data, err := r.Fetch(ctx, att.Link, creds)
	if err != nil {
		return "", err
	}

	location, err := r.saver.Save(ctx, att.Filename, data)
	if err != nil {
		return "", fmt.Errorf("saving attachment %s: %w", att.Filename, err)
	}

	r.log.Info().
		Str("filename", att.Filename).
		Int("bytes", len(data)).
		Str("location", location).
		Msg("Attachment saved")

	return location, nil
}
