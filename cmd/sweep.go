package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/crypto-gateway/internal/payment"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
	"github.com/frahmantamala/crypto-gateway/internal/withdrawal"
)

// sweepCmd expires records the processor stopped notifying about:
// payments stuck in waiting and withdrawals stuck in pending past the
// configured age.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire stale payments and withdrawals",
	Long:  `Mark payments that never left waiting and withdrawals that never left pending as expired. Intended to run on a schedule.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSweep()
	},
}

func runSweep() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	lg := deps.Logger

	registry, err := tenant.NewRegistry(deps.Config.Tenants)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build tenant registry: %v\n", err)
		os.Exit(1)
	}

	paymentService := payment.NewService(deps.Store, lg)
	withdrawalService := withdrawal.NewService(deps.Store, lg)

	now := time.Now()
	cutoff := now.Add(-deps.Config.Webhook.SweepAfter)
	ctx := context.Background()

	for _, cfg := range registry.All() {
		expiredPayments, err := paymentService.ExpireStale(ctx, cfg, cutoff, now)
		if err != nil {
			lg.Error("payment sweep failed", "category", string(cfg.Category), "error", err)
		}

		expiredWithdrawals, err := withdrawalService.ExpireStale(ctx, cfg, cutoff, now)
		if err != nil {
			lg.Error("withdrawal sweep failed", "category", string(cfg.Category), "error", err)
		}

		lg.Info("sweep finished",
			"category", string(cfg.Category),
			"expired_payments", expiredPayments,
			"expired_withdrawals", expiredWithdrawals,
			"cutoff", cutoff)
	}
}
