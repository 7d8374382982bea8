package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
)

// SQLSTATE codes worth another attempt.
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	adminShutdown        = "57P01"
	cannotConnectNow     = "57P03"
)

const foreignKeyViolationCode = "23503"

func foreignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode
}

// retryable reports whether err is transient: lost serialization races,
// deadlocks, dropped connections and timeouts.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailure, deadlockDetected, adminShutdown, cannotConnectNow:
			return true
		}
		// class 08: connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.Timeout(err)
}

// run executes fn with exponential backoff on transient errors. Exhausted
// retries surface as DependencyUnavailable; domain errors pass through.
func (s *Store) run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn(s.db.WithContext(ctx))
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		s.logger.Debug("Retrying store operation",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(20*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
	), uint64(s.attempts-1))

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}

	if _, ok := apperr.As(err); ok {
		return err
	}
	for _, sentinel := range s.passthrough {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if retryable(err) {
		s.logger.Warn("Store operation failed after retries",
			zap.String("op", op),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return apperr.Unavailable(apperr.CodeStoreDown, "storage unavailable", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
