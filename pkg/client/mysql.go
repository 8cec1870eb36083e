package client

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtq/pkg/logger"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLOptions struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	MaxConns int
}

// MySQLDSN builds a DSN that parses DATETIME into time.Time in UTC.
// clientFoundRows makes RowsAffected count matched rows, which the
// compare-and-swap update relies on.
func MySQLDSN(o MySQLOptions) string {
	auth := o.User
	if o.Password != "" {
		auth = fmt.Sprintf("%s:%s", o.User, o.Password)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, o.Host, o.Port, o.Name)
}

func (c *Client) SetMySQL(log *logger.Logger, o MySQLOptions, connTimeout time.Duration) {
	c.log = log
	db, err := sql.Open("mysql", MySQLDSN(o))
	if err != nil {
		log.Fatal("Failed to open MySQL pool", "error", err)
	}

	maxConns := o.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Failed to ping MySQL", "error", err, "host", o.Host, "database", o.Name)
	}

	log.Info("Successfully connected to MySQL", "host", o.Host, "database", o.Name)
	c.MySQL = db
}
