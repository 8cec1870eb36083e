package main

import (
	"context"
	"time"

	mongoMigration "courtq/internal/migrations/mongo"
	mysqlMigration "courtq/internal/migrations/mysql"
	"courtq/pkg/config"
)

const JobName = "migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.SetStore()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting migration job", "store", cfg.StoreDriver)

	var err error
	switch cfg.StoreDriver {
	case config.StoreMongo:
		err = mongoMigration.RunMigration(ctx, cfg.Client.MongoDriver(), cfg.MongoDatabaseName, cfg.Log)
	case config.StoreMySQL:
		err = mysqlMigration.RunMigration(ctx, cfg.Client.MySQL, cfg.Log)
	default:
		cfg.Log.Info("Store has no schema, nothing to migrate")
		return
	}
	if err != nil {
		cfg.Log.Error("Migration failed", "error", err)
		cancel()
		cfg.GracefulShutdown()
		cfg.Log.Fatal("Migration job aborted")
	}
	cfg.Log.Info("Migration completed successfully")
}
