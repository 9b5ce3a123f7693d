package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
	"github.com/angelmondragon/pharmacare-storefront/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront-migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "on-disk goose migrations directory (defaults to the embedded set)")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "storefront-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		if *name == "" {
			exitf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			exitf("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		if *dir == "" {
			err = migrate.ValidateFS(migrate.Migrations, migrate.EmbeddedDir)
		} else {
			err = migrate.ValidateDir(*dir)
		}
		if err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	if !cfg.DB.Configured() {
		requireResource(ctx, logg, "database", errors.New(config.EnvDBDSN+" is not set"))
	}
	sqlDB, err := migrate.Open(ctx, cfg.DB.DSN)
	requireResource(ctx, logg, "database", err)
	defer sqlDB.Close()

	logg.Info(ctx, "migrate ready")

	migrations, err := migrate.Source(*dir)
	requireResource(ctx, logg, "migrations", err)
	runner, err := migrate.NewRunner(sqlDB, migrations)
	requireResource(ctx, logg, "migration runner", err)

	var lines []string
	switch *cmd {
	case "up", "down", "status":
		lines, err = runner.Run(ctx, *cmd)
	case "version":
		if *version == "" {
			exitf("missing -version for version command")
		}
		lines, err = runner.MigrateTo(ctx, *version)
	default:
		exitf("unknown -cmd value: %s", *cmd)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	if err != nil {
		_ = sqlDB.Close()
		requireResource(ctx, logg, "migration "+*cmd, err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	fields := pkgerrors.LogFields(err)
	delete(fields, "error")
	logg.Error(logg.WithFields(ctx, fields), fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
