package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/moderation/store"
)

var logFlags struct {
	profile string
	verdict string
	since   time.Duration
	limit   int
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Query the moderation decision log",
	Long: `Query recent moderation decisions from the decision log database.

Examples:
  # Last 100 decisions
  warden log

  # Violations for one profile in the last hour
  warden log --profile default --verdict violation --since 1h`,
	RunE: queryLog,
}

func init() {
	rootCmd.AddCommand(logCmd)

	logCmd.Flags().StringVar(&logFlags.profile, "profile", "", "filter by moderation profile")
	logCmd.Flags().StringVar(&logFlags.verdict, "verdict", "", "filter by verdict (pass, violation)")
	logCmd.Flags().DurationVar(&logFlags.since, "since", 0, "only decisions newer than this age")
	logCmd.Flags().IntVar(&logFlags.limit, "limit", 100, "maximum rows to print")
}

func queryLog(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	registry := store.NewPoolRegistry(store.PoolConfig{
		MaxConns:       cfg.Storage.Pool.MaxConns,
		MaxIdleConns:   cfg.Storage.Pool.MaxIdleConns,
		AcquireTimeout: cfg.Storage.Pool.AcquireTimeout,
	})
	defer registry.DrainAll()

	log, err := store.NewDecisionLog(registry, cfg.Storage.DecisionsPath)
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}

	query := store.DecisionQuery{
		Profile: logFlags.profile,
		Verdict: logFlags.verdict,
		Limit:   logFlags.limit,
	}
	if logFlags.since > 0 {
		query.Since = time.Now().Add(-logFlags.since)
	}

	rows, err := log.Tail(context.Background(), query)
	if err != nil {
		return fmt.Errorf("query decision log: %w", err)
	}

	if len(rows) == 0 {
		fmt.Println("no decisions match")
		return nil
	}
	for _, row := range rows {
		flags := ""
		if row.ModelAbsent {
			flags += " model-absent"
		}
		if row.Uncertain {
			flags += " uncertain"
		}
		if row.Sampled {
			flags += " sampled"
		}
		fmt.Printf("%s  %-16s %-9s score=%.3f request=%s%s\n",
			row.DecidedAt.Format(time.RFC3339),
			row.Profile,
			row.Verdict,
			row.Score,
			row.RequestID,
			flags)
	}
	fmt.Printf("%d decisions\n", len(rows))
	return nil
}
