package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	paymentmodel "github.com/frahmantamala/crypto-gateway/internal/core/datamodel/payment"
	withdrawalmodel "github.com/frahmantamala/crypto-gateway/internal/core/datamodel/withdrawal"
	"github.com/frahmantamala/crypto-gateway/internal/core/idgen"
	"github.com/frahmantamala/crypto-gateway/internal/payment"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
	"github.com/frahmantamala/crypto-gateway/internal/withdrawal"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the record store with sample data",
	Long:  `Seed each tenant's collections with sample payment and withdrawal records for development.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSeed()
	},
}

func runSeed() {
	deps, err := initializeDependencies()
	if err != nil {
		log.Fatalf("failed to initialize dependencies: %v", err)
	}

	registry, err := tenant.NewRegistry(deps.Config.Tenants)
	if err != nil {
		log.Fatalf("failed to build tenant registry: %v", err)
	}

	paymentService := payment.NewService(deps.Store, deps.Logger)
	withdrawalService := withdrawal.NewService(deps.Store, deps.Logger)

	ctx := context.Background()
	for i, cfg := range registry.All() {
		userID := fmt.Sprintf("dev_user_%d", i+1)

		pay := &paymentmodel.Record{
			PaymentID:        fmt.Sprintf("5%09d", i+1),
			UserID:           userID,
			Amount:           100,
			Currency:         "usdtbsc",
			PayAddress:       "0x000000000000000000000000000000000000dEaD",
			PayAmount:        100,
			PayCurrency:      "usdtbsc",
			Status:           string(payment.StatusWaiting),
			OrderID:          idgen.OrderID(userID),
			OrderDescription: "dev seed deposit",
		}
		if _, err := paymentService.Create(ctx, cfg, pay); err != nil {
			fmt.Printf("payment seed for %s skipped: %v\n", cfg.Category, err)
		} else {
			fmt.Printf("seeded payment %s in %s\n", pay.PaymentID, cfg.PaymentCollection)
		}

		wd := &withdrawalmodel.Record{
			WithdrawalID:      idgen.WithdrawalID(),
			UserID:            userID,
			Amount:            50,
			Currency:          "usdtbsc",
			WithdrawalAddress: "0x000000000000000000000000000000000000bEEF",
			Status:            string(withdrawal.StatusPending),
			Metadata: map[string]interface{}{
				withdrawalmodel.MetadataProcessorID: fmt.Sprintf("7%09d", i+1),
			},
		}
		if _, err := withdrawalService.Create(ctx, cfg, wd); err != nil {
			fmt.Printf("withdrawal seed for %s skipped: %v\n", cfg.Category, err)
		} else {
			fmt.Printf("seeded withdrawal %s in %s\n", wd.WithdrawalID, cfg.WithdrawalCollection)
		}
	}
}
