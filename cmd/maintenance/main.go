// Command maintenance runs one-off data repairs against the vote database.
//
//	maintenance reconcile [-kind city|airport|all]
//	maintenance rename -kind city -from OLD -to NEW
//	maintenance cleanup-debug -prefix debug_
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cityrater/internal/catalog"
	identityService "cityrater/internal/identity/service"
	identityStore "cityrater/internal/identity/store"
	"cityrater/internal/platform/config"
	"cityrater/internal/platform/database"
	"cityrater/internal/platform/logger"
	voteService "cityrater/internal/vote/service"
	voteStore "cityrater/internal/vote/store"
)

const usage = `usage: maintenance <command> [flags]

commands:
  reconcile      rebuild aggregates from the vote ledger
  rename         move votes from one entity id to another
  cleanup-debug  delete users whose Telegram id starts with a prefix
`

var errUsage = errors.New("invalid usage")

type services struct {
	votes    *voteService.Service
	identity *identityService.Service
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Config{Driver: cfg.Database.Driver, URL: cfg.Database.URL})
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Error("migrate database", "error", err)
		os.Exit(1)
	}

	cat, err := catalog.Load(cfg.Catalog.CitiesFile, cfg.Catalog.AirportsFile)
	if err != nil {
		log.Error("load catalog", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, os.Args[1:], newServices(db, cat, cfg, log), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Error("maintenance failed", "error", err)
		os.Exit(1)
	}
}

func newServices(db *sql.DB, cat *catalog.Catalog, cfg config.Config, log *slog.Logger) services {
	tx := database.NewTransactor(db,
		database.WithTimeout(cfg.Database.TxTimeout),
		database.WithMaxAttempts(cfg.Database.TxMaxAttempts),
	)
	identity := identityService.New(identityStore.New(db), tx, identityService.WithLogger(log))
	votes := voteService.New(voteStore.New(db), tx, cat, identity, voteService.WithLogger(log))
	return services{votes: votes, identity: identity}
}

func run(ctx context.Context, args []string, svc services, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}

	switch args[0] {
	case "reconcile":
		fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
		fs.SetOutput(out)
		kind := fs.String("kind", "all", "city, airport or all")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		kinds := catalog.Kinds
		if *kind != "all" {
			k, err := catalog.ParseKind(*kind)
			if err != nil {
				return err
			}
			kinds = []catalog.Kind{k}
		}
		for _, k := range kinds {
			fixed, err := svc.votes.ReconcileAggregates(ctx, k)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %d aggregates corrected\n", k, fixed)
		}
		return nil

	case "rename":
		fs := flag.NewFlagSet("rename", flag.ContinueOnError)
		fs.SetOutput(out)
		kind := fs.String("kind", string(catalog.KindCity), "city or airport")
		from := fs.String("from", "", "entity id to retire")
		to := fs.String("to", "", "entity id that receives the votes")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		k, err := catalog.ParseKind(*kind)
		if err != nil {
			return err
		}
		res, err := svc.votes.RenameEntity(ctx, k, *from, *to)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s -> %s: %d votes moved, %d duplicates dropped\n", k, *from, *to, res.Moved, res.Dropped)
		return nil

	case "cleanup-debug":
		fs := flag.NewFlagSet("cleanup-debug", flag.ContinueOnError)
		fs.SetOutput(out)
		prefix := fs.String("prefix", "", "Telegram id prefix of debug accounts")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		n, err := svc.identity.CleanupDebugUsers(ctx, *prefix)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d debug users deleted\n", n)
		return nil

	default:
		fmt.Fprint(out, usage)
		return errUsage
	}
}
