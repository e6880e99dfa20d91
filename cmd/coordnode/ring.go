package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"go-coordination/hashring"
)

type ringFlags struct {
	servers  []string
	vnodes   int
	hash     string
	history  int
	evict    bool
	snapshot bool
	add      []string
	remove   []string
	keys     []string
}

func newRingCommand() *cobra.Command {
	var flags ringFlags

	var cmd = &cobra.Command{
		Use:   "ring",
		Short: "Build a consistent hash ring and resolve keys",
		Example: `  coordnode ring --servers a,b,c --snapshot --add d --keys user-1,user-2
  coordnode ring --servers a,b --hash xxh3 --vnodes 100 --keys order-7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var logger, err = newLogger(logLevelOr("warn"))
			if err != nil {
				return err
			}

			var opts = []hashring.Option{
				hashring.WithName("coordnode"),
				hashring.WithVirtualNodeCount(flags.vnodes),
				hashring.WithLogger(logger),
			}
			if flags.hash != "" {
				alg, err := hashring.HashAlgorithmByName(flags.hash)
				if err != nil {
					return err
				}
				opts = append(opts, hashring.WithHashAlgorithm(alg))
			}
			if flags.history > 0 {
				opts = append(opts, hashring.WithHistory(flags.history))
				if flags.evict {
					opts = append(opts, hashring.WithOverflowPolicy(hashring.EvictOldest))
				}
			}

			ring, err := hashring.NewRing(opts...)
			if err != nil {
				return fmt.Errorf("failed to create ring: %w", err)
			}

			return runRing(cmd.OutOrStdout(), ring, flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.servers, "servers", nil, "Initial servers")
	cmd.Flags().IntVar(&flags.vnodes, "vnodes", hashring.DefaultVirtualNodeCount, "Virtual nodes per server")
	cmd.Flags().StringVar(&flags.hash, "hash", "", "Hash algorithm ("+strings.Join(hashring.HashAlgorithmNames(), ", ")+")")
	cmd.Flags().IntVar(&flags.history, "history", 0, "Keep up to this many configuration snapshots (0 disables history)")
	cmd.Flags().BoolVar(&flags.evict, "evict-oldest", false, "Evict the oldest snapshot instead of failing when history is full")
	cmd.Flags().BoolVar(&flags.snapshot, "snapshot", false, "Snapshot the initial configuration before applying --add and --remove")
	cmd.Flags().StringSliceVar(&flags.add, "add", nil, "Servers added after the snapshot")
	cmd.Flags().StringSliceVar(&flags.remove, "remove", nil, "Servers removed after the snapshot")
	cmd.Flags().StringSliceVar(&flags.keys, "keys", nil, "Keys to resolve")

	return cmd
}

func runRing(out io.Writer, ring *hashring.Ring, flags ringFlags) error {
	for _, server := range flags.servers {
		if err := ring.Add(server); err != nil {
			return fmt.Errorf("failed to add server %q: %w", server, err)
		}
	}

	if flags.snapshot {
		if !ring.HistoryEnabled() {
			return errors.New("--snapshot needs --history")
		}
		snapshot, err := ring.CreateConfigurationSnapshot()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Snapshot %s: %s\n", snapshot.ID(), strings.Join(snapshot.Servers(), ", "))
	}

	for _, server := range flags.add {
		if err := ring.Add(server); err != nil {
			return fmt.Errorf("failed to add server %q: %w", server, err)
		}
	}
	for _, server := range flags.remove {
		if !ring.Remove(server) {
			fmt.Fprintf(out, "Server %q was not on the ring\n", server)
		}
	}

	fmt.Fprint(out, ring.String())

	if len(flags.keys) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	for _, key := range flags.keys {
		var server, err = ring.GetServer([]byte(key))
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", key, err)
		}

		if !ring.HistoryEnabled() {
			fmt.Fprintf(out, "%-20s -> %s\n", key, server)
			continue
		}

		candidates, err := ring.GetServerCandidates([]byte(key))
		if err != nil {
			return fmt.Errorf("failed to resolve candidates for %q: %w", key, err)
		}
		fmt.Fprintf(out, "%-20s -> %s (candidates: %s)\n", key, server, strings.Join(candidates.Servers(), ", "))
	}

	return nil
}

func logLevelOr(fallback string) string {
	if logLevel != "" {
		return logLevel
	}
	if v := os.Getenv("COORDNODE_LOG_LEVEL"); v != "" {
		return v
	}
	return fallback
}
