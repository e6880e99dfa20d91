package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eiannone/keyboard"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-coordination/election"
	"go-coordination/metrics"
)

type electFlags struct {
	backend     string
	election    string
	participant string
	postgresURL string
	redisAddr   string
	metricsAddr string
	lease       time.Duration
}

func newElectCommand() *cobra.Command {
	var flags electFlags

	var cmd = &cobra.Command{
		Use:   "elect",
		Short: "Compete for leadership of an election",
		RunE: func(cmd *cobra.Command, args []string) error {
			var config, err = loadNodeConfig(configFile)
			if err != nil {
				return err
			}
			flags.apply(cmd, config)
			return runElect(cmd.Context(), config)
		},
	}

	cmd.Flags().StringVar(&flags.backend, "backend", "memory", "Lease store backend (memory, postgres, redis)")
	cmd.Flags().StringVar(&flags.election, "election", "demo", "Election name")
	cmd.Flags().StringVar(&flags.participant, "participant", "", "Participant id (default: host name plus random suffix)")
	cmd.Flags().StringVar(&flags.postgresURL, "db", "", "PostgreSQL connection URL")
	cmd.Flags().StringVar(&flags.redisAddr, "redis", "", "Redis address")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	cmd.Flags().DurationVar(&flags.lease, "lease", 0, "Lease duration")

	return cmd
}

// apply overrides config values with flags set on the command line.
func (f *electFlags) apply(cmd *cobra.Command, config *nodeConfig) {
	var changed = cmd.Flags().Changed
	if changed("backend") {
		config.Backend = f.backend
	}
	if changed("election") {
		config.Election = f.election
	}
	if changed("participant") {
		config.Participant = f.participant
	}
	if changed("db") {
		config.PostgresURL = f.postgresURL
	}
	if changed("redis") {
		config.RedisAddr = f.redisAddr
	}
	if changed("metrics-addr") {
		config.MetricsAddr = f.metricsAddr
	}
	if changed("lease") {
		config.Leader.LeaseDuration = f.lease
		config.Leader.RenewalInterval = f.lease / 3
		config.Leader.RetryInterval = f.lease / 4
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if config.Participant == "" {
		config.Participant = election.NewParticipantID()
	}
}

func runElect(ctx context.Context, config *nodeConfig) error {
	if err := config.validate(); err != nil {
		return err
	}

	var logger, err = newLogger(config.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var registry = prometheus.NewRegistry()
	collector, err := metrics.NewPrometheus(registry, "coordnode")
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	fmt.Printf("Connecting to %s lease store...\n", config.Backend)
	store, closeStore, err := openStore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	service, err := election.NewService(store, config.Election, config.Participant, config.Leader,
		election.WithLogger(logger),
		election.WithMetrics(collector),
	)
	if err != nil {
		return fmt.Errorf("failed to create election service: %w", err)
	}
	defer service.Close()

	_, err = service.OnLeadershipChanged(func(event election.LeadershipChangedEvent) {
		switch {
		case event.LeadershipGained():
			fmt.Fprintf(os.Stderr, "\n👑 Gained leadership of %q\n", config.Election)
		case event.LeadershipLost():
			fmt.Fprintf(os.Stderr, "\n⚠️  Lost leadership of %q\n", config.Election)
		}
	})
	if err != nil {
		return err
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start election: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g, gctx = errgroup.WithContext(ctx)

	if config.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, config.MetricsAddr, registry)
		})
	}

	g.Go(func() error {
		defer cancel()
		return interact(gctx, service)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	var stopCtx, stopCancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	if err := service.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop election: %w", err)
	}
	fmt.Printf("✓ Released leadership and stopped\n")

	return nil
}

// openStore connects the configured backend, retrying the initial connection with backoff.
func openStore(ctx context.Context, config *nodeConfig, logger *slog.Logger) (election.LeaseStore, func(), error) {
	var retry = func(name string, op func() error) error {
		var policy = backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
		return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
			logger.Warn("backend not ready, retrying", "backend", name, "error", err, "wait", wait)
		})
	}

	switch config.Backend {
	case "postgres":
		var db, err = sql.Open("postgres", config.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := retry("postgres", func() error { return db.PingContext(ctx) }); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}

		store, err := election.NewPostgresStore(db, config.TableName)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil

	case "redis":
		var client = redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		if err := retry("redis", func() error { return client.Ping(ctx).Err() }); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}

		store, err := election.NewRedisStore(client, election.WithKeyPrefix(config.RedisPrefix))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil

	default:
		return election.NewMemoryStore(), func() {}, nil
	}
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry) error {
	var mux = http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	var server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		var shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// interact drives the status screen and keyboard controls until quit or ctx ends.
func interact(ctx context.Context, service *election.Service) error {
	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to initialize keyboard: %w", err)
	}
	defer keyboard.Close()

	var keyCh = make(chan rune)
	go func() {
		for {
			char, _, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case keyCh <- char:
			case <-ctx.Done():
				return
			}
		}
	}()

	var ticker = time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	printElectionStatus(ctx, service)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			printElectionStatus(ctx, service)
		case key := <-keyCh:
			switch key {
			case 'a', 'A':
				if err := service.AcquireLeadership(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "\n❌ Acquire failed: %v\n", err)
				}
			case 'r', 'R':
				if err := service.ReleaseLeadership(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "\n❌ Release failed: %v\n", err)
				}
			case 'c', 'C':
				fmt.Printf("\n\n💥 Crashing immediately (no cleanup)...\n")
				os.Exit(1)
			case 'q', 'Q':
				fmt.Printf("\n\nShutting down gracefully...\n")
				return nil
			}
		}
	}
}

func printElectionStatus(ctx context.Context, service *election.Service) {
	fmt.Print("\033[2J\033[H") // Clear screen and move cursor to top

	fmt.Printf("Election:    %s\n", service.Election())
	fmt.Printf("Participant: %s\n", service.ParticipantID())

	if lease, ok := service.CurrentLeader(); ok {
		fmt.Printf("Role:        LEADER (acquired %s, expires in %s)\n",
			lease.AcquiredAt.Format(time.TimeOnly), lease.TimeToExpiry(time.Now()).Round(time.Millisecond))
	} else {
		fmt.Printf("Role:        follower\n")
		var leader, err = service.GetCurrentLeader(ctx)
		switch {
		case err != nil:
			fmt.Printf("Leader:      unknown (%v)\n", err)
		case leader == nil:
			fmt.Printf("Leader:      none\n")
		default:
			fmt.Printf("Leader:      %s (expires in %s)\n", leader.ParticipantID, leader.TimeToExpiry(time.Now()).Round(time.Millisecond))
		}
	}

	fmt.Printf("\nControls:\n")
	fmt.Printf("  [a] Acquire leadership now\n")
	fmt.Printf("  [r] Release leadership\n")
	fmt.Printf("  [c] Crash without cleanup\n")
	fmt.Printf("  [q] Quit gracefully\n")
}
