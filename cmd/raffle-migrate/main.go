package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-raffle/internal/config"
	"ms-raffle/internal/database/migrations"
	"ms-raffle/internal/logger"
)

type command struct {
	envFile string
	dir     string
	down    bool
	to      uint
	help    bool
}

func parseFlags(args []string) (command, *pflag.FlagSet, error) {
	var cmd command
	flagSet := pflag.NewFlagSet("raffle-migrate", pflag.ContinueOnError)
	flagSet.StringVar(&cmd.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&cmd.dir, "dir", "", "migrations directory (default: MIGRATIONS_DIR)")
	flagSet.BoolVar(&cmd.down, "down", false, "roll back every migration")
	flagSet.UintVar(&cmd.to, "to", 0, "migrate up or down to this version")
	flagSet.BoolVarP(&cmd.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return cmd, flagSet, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return cmd, flagSet, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if cmd.down && cmd.to > 0 {
		return cmd, flagSet, errors.New("--down and --to are mutually exclusive")
	}
	return cmd, flagSet, nil
}

func run(log *logger.Logger) error {
	cmd, flagSet, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) || cmd.help {
		fmt.Fprintln(os.Stderr, "Usage: raffle-migrate [--down | --to VERSION] [--dir DIR] [--env-file FILE]")
		flagSet.PrintDefaults()
		return nil
	}
	if err != nil {
		return err
	}

	if err := godotenv.Load(cmd.envFile); err != nil {
		log.Warn("CONFIG", fmt.Sprintf("%s not loaded, using environment variables", cmd.envFile))
	}
	cfg := config.Load()
	if cmd.dir != "" {
		cfg.Database.MigrationsDir = cmd.dir
	}
	if cfg.Database.DSN == "" {
		return errors.New("POSTGRES_DSN not set")
	}

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	opts := migrations.OptionsFromConfig(cfg.Database)
	opts.AutoMigrate = true
	runner := migrations.NewRunner(bunDB, opts, log)
	defer runner.Close()

	switch {
	case cmd.down:
		log.Info("MIGRATION", "Rolling back all migrations")
		return runner.MigrateDown()
	case cmd.to > 0:
		log.Info("MIGRATION", fmt.Sprintf("Migrating to version %d", cmd.to))
		return runner.MigrateTo(cmd.to)
	default:
		return runner.RunMigrations()
	}
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	if err := run(log); err != nil {
		log.Error("MIGRATION", err.Error())
		log.Close()
		os.Exit(1)
	}
	log.Info("MIGRATION", "✅ Done")
}
