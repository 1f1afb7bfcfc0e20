package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesleygoyette/facetime-v4/internal/registry"
)

// runMetrics logs registry and relay stats every interval until ctx is
// cancelled. Quiet intervals with no users and no traffic log nothing.
func runMetrics(ctx context.Context, log zerolog.Logger, reg *registry.Registry, relay *Relay, interval time.Duration) {
	mlog := log.With().Str("component", "metrics").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			datagrams, bytes, sent := relay.Stats()
			users := reg.UserCount()
			if users == 0 && datagrams == 0 {
				continue
			}
			mlog.Info().
				Int("users", users).
				Int("rooms", reg.RoomCount()).
				Uint64("datagrams_in", datagrams).
				Uint64("datagrams_out", sent).
				Float64("kbps_in", float64(bytes)*8/interval.Seconds()/1000).
				Msg("relay stats")
		}
	}
}
