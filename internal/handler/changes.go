package handler

import (
	"context"

	"github.com/saffron-pos/api/internal/events"
	"go.uber.org/zap"
)

// publishChange forwards a committed row change to subscribers. Delivery is
// best effort: failures are logged and never fail the request.
func publishChange(ctx context.Context, pub events.Publisher, log *zap.Logger, c events.Change) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, c); err != nil {
		log.Warn("publish change",
			zap.String("collection", c.Collection),
			zap.String("action", c.Action),
			zap.Stringer("row_id", c.RowID),
			zap.Error(err),
		)
	}
}
