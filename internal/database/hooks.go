package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// queryLogger reports failed and slow queries.
type queryLogger struct {
	logger *zap.Logger
	slow   time.Duration
}

func (h queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.Warn("query failed",
			zap.String("operation", event.Operation()),
			zap.Duration("elapsed", elapsed),
			zap.Error(event.Err),
		)
	case elapsed >= h.slow:
		h.logger.Info("slow query",
			zap.String("operation", event.Operation()),
			zap.Duration("elapsed", elapsed),
			zap.String("query", event.Query),
		)
	}
}
