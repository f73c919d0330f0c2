package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"payroute.backend/internal/domain/entities"
	"payroute.backend/internal/infrastructure/gateways"
	"payroute.backend/internal/usecases"
	"payroute.backend/pkg/crypto"
)

const generatedTokenBytes = 32

var (
	hashToken     = crypto.HashToken
	generateToken = crypto.GenerateRandomToken
)

func sealSecretCmd() *cobra.Command {
	var (
		gatewayCode string
		creds       entities.GatewayCredentials
	)
	cmd := &cobra.Command{
		Use:   "seal-secret",
		Short: "Seal gateway credentials for direct insertion into payment_gateways",
		Long: `Seals credentials with CREDENTIAL_SEALING_KEY. The blob is bound to the
gateway code and will not open under any other code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sealer, err := crypto.NewSealer(loadCfg().Security.CredentialKey)
			if err != nil {
				return fmt.Errorf("invalid credential sealing key: %w", err)
			}
			resolver := usecases.NewGatewayResolver(gateways.NewDefaultRegistry(nil), sealer)
			sealed, err := resolver.SealCredentials(gatewayCode, creds)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}

	cmd.Flags().StringVar(&gatewayCode, "gateway", "", "gateway code the credentials belong to")
	cmd.Flags().StringVar(&creds.APIKey, "api-key", "", "gateway API key")
	cmd.Flags().StringVar(&creds.APISecret, "api-secret", "", "gateway API secret")
	cmd.Flags().StringVar(&creds.WebhookSecret, "webhook-secret", "", "webhook signing secret")
	_ = cmd.MarkFlagRequired("gateway")
	_ = cmd.MarkFlagRequired("api-key")
	return cmd
}

func hashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the bcrypt hash for ADMIN_TOKEN_HASH",
		Long:  "Hashes the given admin token. With no argument a random token is generated and printed first.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				generated, err := generateToken(generatedTokenBytes)
				if err != nil {
					return err
				}
				token = generated
				fmt.Fprintf(out, "Token: %s\n", token)
			}

			hash, err := hashToken(token)
			if err != nil {
				return fmt.Errorf("failed to hash token: %w", err)
			}
			fmt.Fprintf(out, "Hash: %s\n", hash)
			return nil
		},
	}
}
