package loader

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/model"
	"github.com/nhle/mailgate/internal/transport"
)

// Requester is the part of the transport the loaders need.
type Requester interface {
	Get(ctx context.Context, path string, creds model.Credentials) (*transport.Response, error)
}

// SeenMarker receives the read-on-fetch mutation.
type SeenMarker interface {
	MarkSeen(uid string) bool
}

// DetailLoader fetches full messages.
type DetailLoader struct {
	client Requester
	log    zerolog.Logger
}

// NewDetailLoader creates a loader backed by client.
func NewDetailLoader(client Requester, log zerolog.Logger) *DetailLoader {
	return &DetailLoader{client: client, log: log}
}

// Fetch issues GET /{folder}/{uid}. It never mutates local state.
func (l *DetailLoader) Fetch(
	ctx context.Context,
	folder, uid string,
	creds model.Credentials,
) (*model.MessageDetail, error) {
	resp, err := l.client.Get(ctx, transport.MessagePath(folder, uid), creds)
	if err != nil {
		return nil, fmt.Errorf("fetching message %s/%s: %w", folder, uid, err)
	}

	var detail model.MessageDetail
	if err := resp.Decode(&detail); err != nil {
		if transport.IsAuthError(err) {
			l.log.Info().Str("folder", folder).Str("uid", uid).Msg("Unauthorized")
		}
		return nil, fmt.Errorf("fetching message %s/%s: %w", folder, uid, err)
	}
	if detail.UID == "" {
		detail.UID = uid
	}

	return &detail, nil
}

// Load fetches the message and, only on success, marks it seen in list:
// the gateway marks a message read when its body is fetched.
func (l *DetailLoader) Load(
	ctx context.Context,
	folder, uid string,
	creds model.Credentials,
	list SeenMarker,
) (*model.MessageDetail, error) {
	detail, err := l.Fetch(ctx, folder, uid, creds)
	if err != nil {
		return nil, err
	}
	list.MarkSeen(uid)
	return detail, nil
}
