package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/mailhaven/mailstore/internal/config"
	"github.com/mailhaven/mailstore/internal/logger"
)

func main() {
	log := logger.New(logger.DefaultConfig())

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down|version|force N>")
		os.Exit(2)
	}

	cfg := config.Load()
	m, err := migrate.New("file://migrations", databaseURL(&cfg.Database))
	if err != nil {
		log.Error("open migrations failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer m.Close()

	switch os.Args[1] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = m.Version()
		if err == nil || errors.Is(err, migrate.ErrNilVersion) {
			fmt.Printf("version: %d dirty: %t\n", version, dirty)
			return
		}
	case "force":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: migrate force N")
			os.Exit(2)
		}
		var version int
		version, err = strconv.Atoi(os.Args[2])
		if err == nil {
			err = m.Force(version)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Error("migration failed", slog.String("command", os.Args[1]), slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("migration complete", slog.String("command", os.Args[1]))
}

func databaseURL(d *config.DatabaseConfig) string {
	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.DBName,
		RawQuery: "sslmode=" + d.SSLMode,
	}).String()
}
