package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	reserrors "courtq/internal/reservations/errors"
	"courtq/pkg/clock"
	"courtq/pkg/config"
	mongotx "courtq/pkg/db/mongo"
	"courtq/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type mongoStore struct {
	cfg        *config.Config
	clock      clock.Clock
	client     *mongo.Client
	collection *mongo.Collection
	locks      *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoStore(cfg *config.Config, clk clock.Clock) Store {
	client := cfg.Client.MongoDriver()
	database := client.Database(cfg.MongoDatabaseName)
	return &mongoStore{
		cfg:        cfg,
		clock:      clk,
		client:     client,
		collection: database.Collection(CollectionName),
		locks:      database.Collection(LockCollectionName),
		txManager:  mongotx.NewTransactionManager(client, cfg.RetryPolicy()),
	}
}

// withTimeout bounds ctx unless it is a session context, which cannot be
// wrapped without leaving the transaction.
func (s *mongoStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}

func keyFilter(key model.SlotKey) bson.M {
	return bson.M{
		"resource_id": key.ResourceID,
		"date":        key.Date,
		"start_time":  key.StartTime,
	}
}

func queuedFilter(key model.SlotKey) bson.M {
	f := keyFilter(key)
	f["is_in_queue"] = true
	f["status"] = model.StatusPending
	return f
}

// ensureLock creates the lock document outside the transaction so the
// in-transaction write is always an update and conflicts cleanly.
func (s *mongoStore) ensureLock(ctx context.Context, key model.SlotKey) error {
	_, err := s.locks.UpdateOne(ctx,
		bson.M{"_id": key.String()},
		bson.M{"$setOnInsert": bson.M{"version": int64(0), "touched_at": s.clock.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to ensure slot lock: %w", err)
	}
	return nil
}

func (s *mongoStore) WithinSlot(ctx context.Context, key model.SlotKey, fn SlotTxFunc) error {
	lockCtx, cancel := s.withTimeout(ctx, s.cfg.WriteTimeout)
	err := s.ensureLock(lockCtx, key)
	cancel()
	if err != nil {
		return classify(err)
	}

	err = s.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		_, err := s.locks.UpdateOne(sc,
			bson.M{"_id": key.String()},
			bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"touched_at": s.clock.Now()}},
		)
		if err != nil {
			return fmt.Errorf("failed to take slot lock: %w", err)
		}
		return fn(sc, &mongoSlotTx{store: s, key: key})
	})
	return classify(err)
}

func (s *mongoStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*model.Reservation, error) {
	var r model.Reservation
	err := s.collection.FindOne(ctx, filter, opts...).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to find reservation: %w", err))
	}
	return &r, nil
}

func (s *mongoStore) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*model.Reservation, error) {
	cursor, err := s.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to find reservations: %w", err))
	}
	defer cursor.Close(ctx)

	var out []*model.Reservation
	if err = cursor.All(ctx, &out); err != nil {
		return nil, classify(fmt.Errorf("failed to decode reservations: %w", err))
	}
	return out, nil
}

func (s *mongoStore) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	r, err := s.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, reserrors.ErrNotFound
	}
	return r, nil
}

func (s *mongoStore) FindHolder(ctx context.Context, key model.SlotKey) (*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	filter := keyFilter(key)
	filter["holds_slot"] = true
	return s.findOne(ctx, filter)
}

func (s *mongoStore) CountQueued(ctx context.Context, key model.SlotKey) (int, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	n, err := s.collection.CountDocuments(ctx, queuedFilter(key))
	if err != nil {
		return 0, classify(fmt.Errorf("failed to count queue: %w", err))
	}
	return int(n), nil
}

func (s *mongoStore) ListBySlot(ctx context.Context, key model.SlotKey) ([]*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, keyFilter(key), opts)
}

func (s *mongoStore) ListByRequester(ctx context.Context, requesterID string, limit int, offset int64) ([]*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)
	return s.find(ctx, bson.M{"requester_id": requesterID}, opts)
}

func (s *mongoStore) CountByRequester(ctx context.Context, requesterID string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	n, err := s.collection.CountDocuments(ctx, bson.M{"requester_id": requesterID})
	if err != nil {
		return 0, classify(fmt.Errorf("failed to count reservations: %w", err))
	}
	return n, nil
}

func (s *mongoStore) FindExpiredHolders(ctx context.Context, now time.Time, limit int) ([]*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "payment_expires_at", Value: 1}}).
		SetLimit(int64(limit))
	return s.find(ctx, expiredHoldersFilter(now), opts)
}

// PendingHoldFilter is the partial filter of the pending_hold_expiry index.
// Queries meant to use that index must include every term of it.
func PendingHoldFilter() bson.M {
	return bson.M{"holds_slot": true, "status": model.StatusPending}
}

func expiredHoldersFilter(now time.Time) bson.M {
	filter := PendingHoldFilter()
	filter["is_in_queue"] = false
	filter["payment_expires_at"] = bson.M{"$lt": now}
	return filter
}

func (s *mongoStore) FindStrandedSlots(ctx context.Context, limit int) ([]model.SlotKey, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"is_in_queue": true, "status": model.StatusPending}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"resource_id": "$resource_id", "date": "$date", "start_time": "$start_time"},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from": CollectionName,
			"let":  bson.M{"r": "$_id.resource_id", "d": "$_id.date", "s": "$_id.start_time"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{
					"holds_slot": true,
					"$expr": bson.M{"$and": bson.A{
						bson.M{"$eq": bson.A{"$resource_id", "$$r"}},
						bson.M{"$eq": bson.A{"$date", "$$d"}},
						bson.M{"$eq": bson.A{"$start_time", "$$s"}},
					}},
				}},
				bson.M{"$limit": 1},
			},
			"as": "holder",
		}}},
		{{Key: "$match", Value: bson.M{"holder": bson.M{"$size": 0}}}},
		{{Key: "$limit", Value: limit}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to find stranded slots: %w", err))
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID model.SlotKey `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, classify(fmt.Errorf("failed to decode stranded slots: %w", err))
	}
	keys := make([]model.SlotKey, len(rows))
	for i, row := range rows {
		keys[i] = row.ID
	}
	return keys, nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return classify(err)
	}
	return nil
}

type mongoSlotTx struct {
	store *mongoStore
	key   model.SlotKey
}

func (t *mongoSlotTx) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := t.store.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, reserrors.ErrNotFound
	}
	return r, nil
}

func (t *mongoSlotTx) FindHolders(ctx context.Context) ([]*model.Reservation, error) {
	filter := keyFilter(t.key)
	filter["is_in_queue"] = false
	filter["status"] = model.StatusPending
	return t.store.find(ctx, filter)
}

func (t *mongoSlotTx) FindConfirmed(ctx context.Context) (*model.Reservation, error) {
	filter := keyFilter(t.key)
	filter["status"] = model.StatusConfirmed
	return t.store.findOne(ctx, filter)
}

func (t *mongoSlotTx) FindOpenByRequester(ctx context.Context, requesterID string) (*model.Reservation, error) {
	filter := keyFilter(t.key)
	filter["requester_id"] = requesterID
	filter["status"] = model.StatusPending
	return t.store.findOne(ctx, filter)
}

func (t *mongoSlotTx) ListQueued(ctx context.Context) ([]*model.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "queue_position", Value: 1}})
	return t.store.find(ctx, queuedFilter(t.key), opts)
}

func (t *mongoSlotTx) Insert(ctx context.Context, r *model.Reservation) error {
	if _, err := t.store.collection.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %w", reserrors.ErrInvariantViolation, err)
		}
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func (t *mongoSlotTx) CompareAndSwap(ctx context.Context, r *model.Reservation, prevStatus model.ReservationStatus, prevInQueue bool) error {
	filter := bson.M{"_id": r.ID, "status": prevStatus, "is_in_queue": prevInQueue}
	result, err := t.store.collection.ReplaceOne(ctx, filter, r)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %w", reserrors.ErrInvariantViolation, err)
		}
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	if result.MatchedCount == 0 {
		return reserrors.ErrStateChanged
	}
	return nil
}

func (t *mongoSlotTx) ShiftQueue(ctx context.Context, after int) error {
	filter := queuedFilter(t.key)
	filter["queue_position"] = bson.M{"$gt": after}
	update := bson.M{
		"$inc": bson.M{"queue_position": -1},
		"$set": bson.M{"updated_at": t.store.clock.Now()},
	}
	if _, err := t.store.collection.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to shift queue: %w", err)
	}
	return nil
}
