package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisstore "github.com/target/opsdesk-go/internal/adapters/redis"
	"github.com/target/opsdesk-go/internal/bootstrap"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
)

type sessionOptions struct {
	Key     string
	Timeout time.Duration
	Show    bool
}

func parseSessionFlags(cfgKey string, args []string) (sessionOptions, error) {
	fs := flag.NewFlagSet("clear-session", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := sessionOptions{Key: cfgKey, Timeout: defaultRecordTimeout}
	fs.StringVar(&opts.Key, "key", cfgKey, "Redis key of the session snapshot")
	fs.DurationVar(&opts.Timeout, "timeout", defaultRecordTimeout, "Maximum duration for the operation")
	fs.BoolVar(&opts.Show, "show", false, "Print the stored snapshot before removing it")
	if err := fs.Parse(args); err != nil {
		return sessionOptions{}, err
	}
	if opts.Key == "" {
		return sessionOptions{}, errors.New("--key must not be empty")
	}
	if opts.Timeout <= 0 {
		return sessionOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runClearSession(cmdCtx *commandContext, args []string) error {
	opts, err := parseSessionFlags(cmdCtx.Config.Session.SnapshotKey, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()

	store := redisstore.NewSnapshotStore(client, redisstore.SnapshotStoreOptions{Key: opts.Key})
	if opts.Show {
		id, loadErr := store.Load(ctx)
		if loadErr != nil && !errors.Is(loadErr, ports.ErrRecordNotFound) {
			return fmt.Errorf("load snapshot: %w", loadErr)
		}
		if err := printSnapshot(id); err != nil {
			return err
		}
	}
	if err := store.Delete(ctx); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return writef(os.Stdout, "Cleared session snapshot %q.\n", opts.Key)
}

func printSnapshot(id domainauth.Identity) error {
	if id.IsZero() {
		return writeln(os.Stdout, "No session snapshot stored.")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(id)
}
