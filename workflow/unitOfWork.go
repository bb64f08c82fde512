package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/mmdatafocus/batchtrace_backend/workflow")

// UnitOfWork is one database transaction. It is committed only when the callback returns nil,
// and rolled back on every other exit, panics included.
type UnitOfWork struct {
	Ctx           context.Context
	Tx            *gorm.DB
	CorrelationId string
	Attempt       int
}

// RunInTransaction executes fn in a fresh transaction, replaying it from the start when the store
// reports a deadlock, lock wait timeout or busy database. Other errors are returned as is.
func RunInTransaction(ctx context.Context, db *gorm.DB, logger *logrus.Logger, maxRetries int, backoff time.Duration, name string, fn func(uow *UnitOfWork) error) error {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attribute.String("correlation_id", correlationId)))
	defer span.End()

	var err error
	for attempt := 1; ; attempt++ {
		err = runOnce(ctx, db, &UnitOfWork{Ctx: ctx, CorrelationId: correlationId, Attempt: attempt}, fn)
		if err == nil || !utils.IsRetryableTxErr(err) || attempt > maxRetries {
			break
		}
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":          name,
				"attempt":        attempt,
				"correlation_id": correlationId,
			}).Warn("transaction conflict, retrying: " + err.Error())
		}
		sleep := backoff << min(attempt-1, 5)
		select {
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		case <-time.After(sleep):
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func runOnce(ctx context.Context, db *gorm.DB, uow *UnitOfWork, fn func(uow *UnitOfWork) error) (err error) {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}
	uow.Tx = tx

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(uow); err != nil {
		return err
	}
	if err = tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// run is RunInTransaction with the service's store, logger and retry settings. Failures are logged
// with module and function context.
func (s *Service) run(ctx context.Context, module string, funcName string, data any, fn func(uow *UnitOfWork) error) error {
	err := RunInTransaction(ctx, s.DB, s.Logger, s.Settings.TxMaxRetries, s.RetryBackoff, module+"."+funcName, fn)
	if err != nil {
		config.LogError(s.Logger, module, funcName, "RunInTransaction", data, err)
	}
	return err
}
