package worker

import (
	"context"
	"time"

	"vallenar/internal/dto"

	"github.com/rs/zerolog/log"
)

// Expirer is the slice of service.QuoteService the sweep needs.
type Expirer interface {
	ExpireQuotes(ctx context.Context) (*dto.ExpirarResponse, error)
}

// StartExpirySweep runs ExpireQuotes every interval until ctx is cancelled.
// Quotes locked by a live transaction are skipped and picked up next tick.
func StartExpirySweep(ctx context.Context, quotes Expirer, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("expiry_sweep: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("expiry_sweep: shutting down")
				return
			case <-ticker.C:
				sweepOnce(ctx, quotes)
			}
		}
	}()
}

func sweepOnce(ctx context.Context, quotes Expirer) {
	resp, err := quotes.ExpireQuotes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("expiry_sweep: pass failed")
		return
	}
	if resp.Expiradas > 0 {
		log.Info().Int64("expired", resp.Expiradas).Msg("expiry_sweep: quotes expired")
	} else {
		log.Debug().Msg("expiry_sweep: nothing due")
	}
}
