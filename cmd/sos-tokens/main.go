// cmd/sos-tokens/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"

	"sos-workers/internal/common/config"
	"sos-workers/internal/common/database"
	"sos-workers/internal/common/logger"
	"sos-workers/internal/profiles"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sos-tokens: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		flagset    = flag.NewFlagSet("sos-tokens", flag.ExitOnError)
		flConfig   = flagset.String("config", "", "path to a config.yaml; defaults to the worker's lookup paths")
		flUsers    = flagset.String("users", "", "comma separated user ids to inspect; positional args are appended")
		flTimeout  = flagset.Duration("timeout", 10*time.Second, "overall lookup timeout")
		flShowFull = flagset.Bool("full", false, "print tokens unredacted")
	)

	if err := ff.Parse(flagset, args, ff.WithEnvVarPrefix("SOS_TOKENS")); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	ids := splitIDs(*flUsers)
	ids = append(ids, flagset.Args()...)
	if len(ids) == 0 {
		return fmt.Errorf("no user ids given")
	}

	var (
		cfg *config.Config
		err error
	)
	if *flConfig != "" {
		cfg, err = config.LoadFromFile(*flConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flTimeout)
	defer cancel()

	pg, err := database.NewPostgres(ctx, cfg.Database.Postgres, *flTimeout)
	if err != nil {
		return err
	}
	defer pg.Close()

	store := profiles.NewPostgresStore(pg.DB, nil, 0, logger.NewNoOpLogger())
	_, err = inspect(ctx, store, ids, !*flShowFull, os.Stdout)
	return err
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
