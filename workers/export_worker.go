package workers

import (
	"context"
	"time"

	"challenge-ladder/services"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Exporter writes the ranking, match and dispute snapshots.
type Exporter interface {
	Export(ctx context.Context) (*services.ExportResult, error)
}

// PollExports runs an export every interval until ctx is done. A non-positive
// interval disables the loop. A failed export is retried on the next tick.
func PollExports(ctx context.Context, exporter Exporter, clock clockwork.Clock, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		log.Info("📊 periodic export disabled")
		return
	}
	log.Info("📊 starting periodic export", zap.Duration("interval", interval))

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("⏹️ periodic export stopped")
			return
		case <-ticker.Chan():
			res, err := exporter.Export(ctx)
			if err != nil {
				log.Error("❌ export failed", zap.Error(err))
				continue
			}
			log.Info("✅ export written", zap.Any("locations", res.Locations))
		}
	}
}
