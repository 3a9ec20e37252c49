// Command backup exports the vote tables as CSV to S3 or a local directory.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cityrater/internal/backup"
	"cityrater/internal/platform/config"
	"cityrater/internal/platform/database"
	"cityrater/internal/platform/logger"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	dir := flag.String("dir", cfg.Backup.Dir, "local output directory, ignored when BACKUP_S3_BUCKET is set")
	prefix := flag.String("prefix", cfg.Backup.Prefix, "object key prefix")
	flag.Parse()

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Backup.Dir = *dir
	cfg.Backup.Prefix = *prefix
	if err := run(ctx, cfg, log); err != nil {
		log.Error("backup failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	exporter, closeExporter, err := openExporter(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeExporter()

	var dest backup.Destination
	if cfg.Backup.S3Bucket != "" {
		dest, err = backup.NewS3Destination(ctx, backup.S3Config{
			Bucket:    cfg.Backup.S3Bucket,
			Region:    cfg.Backup.S3Region,
			Endpoint:  cfg.Backup.S3Endpoint,
			PathStyle: cfg.Backup.S3PathStyle,
		})
		if err != nil {
			return err
		}
	} else {
		dest = backup.NewDirDestination(cfg.Backup.Dir)
	}

	m, err := backup.New(exporter, dest,
		backup.WithLogger(log),
		backup.WithPrefix(cfg.Backup.Prefix),
	).Run(ctx)
	if err != nil {
		return err
	}
	log.Info("backup complete", "prefix", m.Prefix, "tables", len(m.Files))
	return nil
}

func openExporter(ctx context.Context, cfg config.DatabaseConfig) (backup.Exporter, func(), error) {
	if cfg.Driver == database.DriverPostgres {
		e, err := backup.NewPgxExporter(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		return e, func() { _ = e.Close(context.Background()) }, nil
	}
	db, err := database.Open(ctx, database.Config{Driver: cfg.Driver, URL: cfg.URL})
	if err != nil {
		return nil, nil, err
	}
	return backup.NewSQLExporter(db), func() { _ = db.Close() }, nil
}
