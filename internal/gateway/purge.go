package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/store"
)

// RunPurger deletes attachments older than ttl every interval until ctx
// is done. A ttl of zero returns immediately.
func RunPurger(ctx context.Context, st store.Store, ttl, interval time.Duration, log zerolog.Logger) error {
	if ttl <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := st.PurgeAttachments(ctx, time.Now().Add(-ttl))
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn().Err(err).Msg("Attachment purge failed")
		case n > 0:
			log.Info().Int64("purged", n).Msg("Purged expired attachments")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
