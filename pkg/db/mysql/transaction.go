package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"courtq/pkg/db"

	driver "github.com/go-sql-driver/mysql"
)

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

type TransactionFunc func(ctx context.Context, tx *sql.Tx) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mysqlTransactionManager struct {
	db     *sql.DB
	policy db.RetryPolicy
}

func NewTransactionManager(conn *sql.DB, policy db.RetryPolicy) TransactionManager {
	return &mysqlTransactionManager{
		db:     conn,
		policy: policy,
	}
}

func (m *mysqlTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	return m.policy.Run(ctx, IsRetryable, func(ctx context.Context) error {
		tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// IsRetryable reports deadlocks and lock wait timeouts, after which InnoDB
// has already rolled the transaction back.
func IsRetryable(err error) bool {
	var me *driver.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == errDeadlock || me.Number == errLockWaitTimeout
}

// IsDuplicateKey reports a unique index violation.
func IsDuplicateKey(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
