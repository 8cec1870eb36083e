package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"courtq/pkg/logger"
)

// Schema is applied in order. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS reservations (
		seq                BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		id                 CHAR(36)     NOT NULL,
		resource_id        VARCHAR(64)  NOT NULL,
		slot_date          CHAR(10)     NOT NULL,
		start_time         CHAR(5)      NOT NULL,
		end_time           CHAR(5)      NOT NULL,
		requester_id       VARCHAR(128) NOT NULL,
		status             VARCHAR(16)  NOT NULL,
		payment_status     VARCHAR(16)  NOT NULL,
		is_in_queue        TINYINT(1)   NOT NULL DEFAULT 0,
		queue_position     INT          NULL,
		payment_started_at DATETIME(6)  NULL,
		payment_expires_at DATETIME(6)  NULL,
		price_cents        BIGINT       NOT NULL DEFAULT 0,
		duration_minutes   INT          NOT NULL,
		cancelled_by       VARCHAR(128) NULL,
		cancel_reason      VARCHAR(200) NULL,
		created_at         DATETIME(6)  NOT NULL,
		updated_at         DATETIME(6)  NOT NULL,
		holder_key         VARCHAR(96)  NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_reservations_seq (seq),
		UNIQUE KEY uq_reservations_holder (holder_key),
		KEY idx_reservations_slot_queue (resource_id, slot_date, start_time, is_in_queue, status, queue_position),
		KEY idx_reservations_expiry (status, is_in_queue, payment_expires_at),
		KEY idx_reservations_requester (requester_id, created_at),
		CONSTRAINT chk_reservations_status CHECK (status IN ('PENDING', 'CONFIRMED', 'EXPIRED', 'CANCELLED')),
		CONSTRAINT chk_reservations_payment CHECK (payment_status IN ('UNPAID', 'PAID', 'REFUNDED')),
		CONSTRAINT chk_reservations_position CHECK (queue_position IS NULL OR queue_position >= 1)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS slot_locks (
		slot_key   VARCHAR(96) NOT NULL,
		version    BIGINT      NOT NULL DEFAULT 0,
		touched_at DATETIME(6) NOT NULL,
		PRIMARY KEY (slot_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

func RunMigration(ctx context.Context, db *sql.DB, log *logger.Logger) error {
	log.Info("Running MySQL migrations", "statements", len(Schema))
	for i, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i+1, err)
		}
	}
	log.Info("All MySQL migrations applied")
	return nil
}
