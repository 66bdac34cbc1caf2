package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/noah-isme/edutrack-api/migrations"
	"github.com/noah-isme/edutrack-api/pkg/config"
	"github.com/noah-isme/edutrack-api/pkg/database"
	"github.com/noah-isme/edutrack-api/pkg/logger"
)

const usage = `Usage: migrate <command> [args]

Commands:
  up                   apply all pending migrations
  up-to VERSION        apply migrations up to VERSION
  down                 roll back the latest migration
  down-to VERSION      roll back to VERSION
  redo                 roll back and re-apply the latest migration
  status               print the status of every migration
  version              print the current schema version
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("connect database", "error", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(zapGooseLogger{logr.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		logr.Sugar().Fatalw("set goose dialect", "error", err)
	}

	command := flag.Arg(0)
	if err := goose.RunContext(ctx, command, db.DB, ".", flag.Args()[1:]...); err != nil {
		logr.Sugar().Fatalw("migration failed", "command", command, "error", err)
	}
}
