package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"payroute.backend/internal/domain/entities"
	"payroute.backend/internal/infrastructure/gateways"
	"payroute.backend/internal/infrastructure/repositories"
	"payroute.backend/internal/usecases"
	"payroute.backend/pkg/crypto"
)

func explainRouteCmd() *cobra.Command {
	var (
		merchant string
		amount   string
		currency string
		method   string
		strategy string
		at       string
	)
	cmd := &cobra.Command{
		Use:   "explain-route",
		Short: "Show which gateway a transaction would be routed to, and why",
		Long: `Runs the routing engine against the merchant's live gateway bindings,
rules and health metrics for a hypothetical transaction. Nothing is written.

Example:
  payroutectl explain-route --merchant 0191... --amount 2500 --currency INR --method upi`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			merchantID, err := uuid.Parse(merchant)
			if err != nil {
				return fmt.Errorf("invalid --merchant: %w", err)
			}
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			in := usecases.ExplainRouteInput{
				Amount:        value,
				Currency:      currency,
				PaymentMethod: entities.PaymentMethod(method),
				Strategy:      entities.ProcessingStrategy(strategy),
			}
			if at != "" {
				if in.At, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			cfg := loadCfg()
			sealer, err := crypto.NewSealer(cfg.Security.CredentialKey)
			if err != nil {
				return fmt.Errorf("invalid credential sealing key: %w", err)
			}

			return withDB(func(db *gorm.DB) error {
				admin := usecases.NewRoutingAdminUsecase(
					repositories.NewPaymentGatewayRepository(db),
					repositories.NewMerchantGatewayRepository(db),
					repositories.NewRoutingRuleRepository(db),
					repositories.NewGatewayHealthRepository(db),
					usecases.NewRoutingEngine(cfg.Routing.AvailabilityFallback).WithHealthMaxAge(cfg.Routing.HealthMaxAge),
					usecases.NewGatewayResolver(gateways.NewDefaultRegistry(nil), sealer),
				)
				selection, err := admin.ExplainRoute(cmd.Context(), merchantID, in)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(selection)
			})
		},
	}

	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant ID")
	cmd.Flags().StringVar(&amount, "amount", "", "transaction amount")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO currency code")
	cmd.Flags().StringVar(&method, "method", "", "payment method (card, upi, ...)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "failover, loadbalance or default")
	cmd.Flags().StringVar(&at, "at", "", "evaluate rules at this RFC3339 instant instead of now")
	for _, name := range []string{"merchant", "amount", "currency", "method"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
