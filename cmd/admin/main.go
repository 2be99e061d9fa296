package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"clawfinance/internal/domain/account"
	"clawfinance/internal/domain/connection"
	"clawfinance/internal/domain/openfinance"
	"clawfinance/internal/domain/transaction"
	"clawfinance/internal/infrastructure/crypto"
	"clawfinance/internal/infrastructure/flinks"
	"clawfinance/internal/infrastructure/lock"
	"clawfinance/internal/infrastructure/postgres"
	"clawfinance/internal/infrastructure/redis"
	"clawfinance/internal/shared/auth"
	"clawfinance/internal/shared/config"
	"clawfinance/internal/shared/logging"
)

const usage = `ClawFinance Admin CLI - Management commands for the ClawFinance API

Usage:
  admin <command> [options]

Commands:
  migrate       Apply database migrations
  token         Mint a JWT for a user (development)
  connections   List a user's bank connections
  sync          Sync one connection, or every active connection with --all

Examples:
  admin migrate
  admin token --user=1 --email=dev@example.com
  admin connections --user=1
  admin sync --user=1 --connection=6f1c2a54-9a4e-4c1b-8a43-2d6a1f0e9b11
  admin sync --all --timeout=1h
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	var err error
	switch command := os.Args[1]; command {
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "connections":
		err = runConnections(os.Args[2:])
	case "sync":
		err = runSync(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every database-backed command needs.
type env struct {
	cfg    *config.Config
	db     *postgres.DB
	logger *slog.Logger
}

func open() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Log)

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, logger: logger}, nil
}

func (e *env) connectionService() (*connection.Service, *flinks.Client, error) {
	encryptor, err := crypto.NewEncryptor(e.cfg.Encrypt.Key)
	if err != nil {
		return nil, nil, err
	}
	client := flinks.NewClient(e.cfg.Flinks.BaseURL(), e.cfg.Flinks.CustomerID, e.cfg.Flinks.Timeout)
	return connection.NewService(postgres.NewConnectionRepository(e.db), client, encryptor, e.logger), client, nil
}

// syncService uses the Redis lock when configured so a terminal sync cannot
// overlap one started by the API. No push notifications are sent.
func (e *env) syncService(ctx context.Context) (*openfinance.SyncService, error) {
	connections, client, err := e.connectionService()
	if err != nil {
		return nil, err
	}

	var locker openfinance.Locker = lock.NewLocal()
	if e.cfg.Redis.URL != "" {
		rc, err := redis.NewClient(ctx, e.cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		locker = redis.NewLocker(rc, e.cfg.Redis.KeyPrefix, e.cfg.Redis.LockTTL, e.logger)
	}

	reconciler := openfinance.NewReconciler(
		account.NewService(postgres.NewAccountRepository(e.db)),
		transaction.NewService(postgres.NewTransactionRepository(e.db)),
	)
	return openfinance.NewSyncService(
		connections, client, reconciler, nil, locker,
		openfinance.SyncConfig{PollInterval: e.cfg.Sync.PollInterval, MaxPolls: e.cfg.Sync.MaxPolls},
		e.logger,
	), nil
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := open()
	if err != nil {
		return err
	}
	defer e.db.Close()

	if err := postgres.Migrate(context.Background(), e.db); err != nil {
		return err
	}
	fmt.Println("Migrations applied")
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.Int64("user", 0, "User ID to put in the token")
	email := fs.String("email", "", "Email claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		fs.Usage()
		return fmt.Errorf("--user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	token, err := auth.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL).Generate(*userID, *email)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runConnections(args []string) error {
	fs := flag.NewFlagSet("connections", flag.ExitOnError)
	userID := fs.Int64("user", 0, "User ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		fs.Usage()
		return fmt.Errorf("--user is required")
	}

	e, err := open()
	if err != nil {
		return err
	}
	defer e.db.Close()

	connections, _, err := e.connectionService()
	if err != nil {
		return err
	}

	conns, err := connections.List(context.Background(), *userID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tINSTITUTION\tSTATUS\tLAST SYNCED\tERROR")
	for _, c := range conns {
		synced := "-"
		if c.LastSyncedAt != nil {
			synced = c.LastSyncedAt.Format(time.RFC3339)
		}
		errMsg := ""
		if c.ErrorMessage != nil {
			errMsg = *c.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Institution, c.Status, synced, errMsg)
	}
	return tw.Flush()
}

func runSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	userID := fs.Int64("user", 0, "Owner of the connection")
	connID := fs.String("connection", "", "Connection ID")
	all := fs.Bool("all", false, "Sync every active connection")
	timeout := fs.Duration("timeout", 30*time.Minute, "Timeout for the operation (e.g., 5m, 1h)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*all && (*userID <= 0 || *connID == "") {
		fs.Usage()
		return fmt.Errorf("must specify --user and --connection, or --all")
	}

	e, err := open()
	if err != nil {
		return err
	}
	defer e.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	syncService, err := e.syncService(ctx)
	if err != nil {
		return err
	}

	start := time.Now()

	if *all {
		result, err := syncService.SyncAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n=== Sync all (%v) ===\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Connections:   %d\n", result.Total)
		fmt.Printf("  Synced:        %d\n", result.Synced)
		fmt.Printf("  Pending:       %d\n", result.Pending)
		fmt.Printf("  MFA required:  %d\n", result.MFA)
		fmt.Printf("  Failed:        %d\n", result.Failed)
		return nil
	}

	result, err := syncService.Sync(ctx, *userID, *connID)
	if err != nil {
		return err
	}
	fmt.Printf("\n=== Connection %s (%v) ===\n", *connID, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Outcome:       %s\n", result.Outcome)
	if result.Outcome == openfinance.OutcomeSynced {
		fmt.Printf("  Accounts:      %d\n", result.Accounts)
		fmt.Printf("  Transactions:  %d\n", result.Transactions)
	}
	return nil
}
