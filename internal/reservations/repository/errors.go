package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	reserrors "courtq/internal/reservations/errors"
	"courtq/pkg/db"

	driver "github.com/go-sql-driver/mysql"
	"go.mongodb.org/mongo-driver/mongo"
)

// classify maps driver failures onto the reservation error taxonomy.
// Errors already carrying a sentinel pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, db.ErrRetriesExhausted) {
		return fmt.Errorf("%w: %w", reserrors.ErrConcurrencyConflict, err)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", reserrors.ErrStoreUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	if errors.Is(err, driver.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
