package mongo

import (
	"context"
	"errors"
	"fmt"

	"courtq/pkg/db"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"
	codeWriteConflict         = 112
	maxCommitAttempts         = 3
)

type TransactionFunc func(ctx mongo.SessionContext) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client *mongo.Client
	policy db.RetryPolicy
}

// NewTransactionManager returns a manager that replays transient
// transaction failures according to policy instead of the driver's
// unbounded WithTransaction loop.
func NewTransactionManager(client *mongo.Client, policy db.RetryPolicy) TransactionManager {
	return &mongoTransactionManager{
		client: client,
		policy: policy,
	}
}

func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.Background())

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return m.policy.Run(ctx, IsTransient, func(ctx context.Context) error {
		return mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
			if err := sc.StartTransaction(txnOpts); err != nil {
				return fmt.Errorf("failed to start transaction: %w", err)
			}
			if err := fn(sc); err != nil {
				_ = sc.AbortTransaction(context.Background())
				return err
			}
			return commit(sc)
		})
	})
}

func commit(sc mongo.SessionContext) error {
	var err error
	for i := 0; i < maxCommitAttempts; i++ {
		err = sc.CommitTransaction(sc)
		if err == nil || !hasLabel(err, labelUnknownCommitResult) {
			return err
		}
	}
	return err
}

// IsTransient reports whether the whole transaction may be replayed.
func IsTransient(err error) bool {
	if hasLabel(err, labelTransientTransaction) {
		return true
	}
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(codeWriteConflict)
}

func hasLabel(err error, label string) bool {
	var le mongo.LabeledError
	return errors.As(err, &le) && le.HasErrorLabel(label)
}
