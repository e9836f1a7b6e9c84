package export

import (
	"context"
	"log/slog"

	"github.com/starford/todotrail/internal/notify"
)

// Mirror rewrites the snapshot every time a corpus.refreshed event arrives
// on events, until ctx is cancelled or events is closed. snap is called to
// capture the generation being written.
func Mirror(ctx context.Context, db *DB, events <-chan notify.Event, snap func() Snapshot, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type != notify.EventRefreshed {
				continue
			}
			s := snap()
			if err := db.Write(s); err != nil {
				logger.Warn("export: write snapshot failed",
					slog.String("generation", s.Generation),
					slog.String("error", err.Error()))
				continue
			}
			logger.Debug("export: snapshot written",
				slog.String("generation", s.Generation),
				slog.Int("annotations", len(s.Annotations)))
		}
	}
}
