package service

import (
	"context"
	"database/sql"
	"math/rand"
	"time"

	"vallenar/internal/apierror"
	"vallenar/internal/infra"
	"vallenar/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// TxRunner executes fn as one serializable transaction. Implementations retry
// the whole function on serialization failures and deadlocks; lock contention
// (ResourceBusy) is returned at once.
type TxRunner interface {
	Run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error
}

type gormTxRunner struct {
	db         *gorm.DB
	maxRetries int
	backoff    time.Duration
}

// NewTxRunner returns the production runner. maxRetries is the number of
// re-executions after the first attempt.
func NewTxRunner(db *gorm.DB, maxRetries int) TxRunner {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &gormTxRunner{db: db, maxRetries: maxRetries, backoff: 25 * time.Millisecond}
}

func (r *gormTxRunner) Run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return retryTransient(ctx, op, r.maxRetries, r.backoff, func() error {
		err := r.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
		return repository.Classify(err)
	})
}

// retryTransient re-runs attempt while it fails with SerializationConflict or
// DeadlockDetected, sleeping base*2^n plus jitter between tries.
func retryTransient(ctx context.Context, op string, maxRetries int, base time.Duration, attempt func() error) error {
	for n := 0; ; n++ {
		err := attempt()
		if err == nil {
			return nil
		}
		kind := apierror.KindOf(err)
		if kind != apierror.KindSerializationConflict && kind != apierror.KindDeadlockDetected {
			return err
		}
		if n >= maxRetries {
			return err
		}
		infra.TxRetries.WithLabelValues(op).Inc()
		wait := base<<n + time.Duration(rand.Int63n(int64(base)+1))
		log.Warn().Str("op", op).Str("kind", string(kind)).Int("attempt", n+1).Dur("wait", wait).Msg("transaction retry")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return apierror.Infrastructure(ctx.Err())
		case <-t.C:
		}
	}
}
