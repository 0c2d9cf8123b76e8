package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/leadpulse/backend/internal/services"
	"github.com/leadpulse/backend/libs/auth/middleware"
	"github.com/leadpulse/backend/libs/auth/service"
	"github.com/leadpulse/backend/libs/config"
	"github.com/spf13/cobra"
)

type configLoader func() (*config.Config, error)

func newRootCmd(load configLoader) *cobra.Command {
	command := &cobra.Command{
		Use:           "leadpulsectl",
		Short:         "Operator tooling for LeadPulse",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	command.AddCommand(tokenCmd(load))
	command.AddCommand(encryptCredentialCmd(load))

	return command
}

// tokenCmd issues an admin access token signed with JWT_SECRET
func tokenCmd(load configLoader) *cobra.Command {
	var (
		operatorID int
		expiry     time.Duration
	)

	command := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if operatorID <= 0 {
				return errors.New("--operator-id must be positive")
			}
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if expiry <= 0 {
				expiry = cfg.JWT.AccessTokenExpiry
			}

			token, err := service.NewTokenGenerator(cfg.JWT.Secret, expiry).GenerateAccessToken(operatorID, middleware.RoleAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	command.Flags().IntVar(&operatorID, "operator-id", 0, "Operator ID recorded in admin trigger logs")
	command.Flags().DurationVar(&expiry, "expiry", 0, "Token lifetime (default JWT_ACCESS_TOKEN_EXPIRY)")

	return command
}

// encryptCredentialCmd seals an upstream API key for account_settings.encrypted_api_key
func encryptCredentialCmd(load configLoader) *cobra.Command {
	var apiKey string

	command := &cobra.Command{
		Use:   "encrypt-credential",
		Short: "Encrypt an upstream API key with CREDENTIAL_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				return errors.New("--api-key is required")
			}
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			sealed, err := services.EncryptCredential(cfg.CredentialKey, apiKey)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}

	command.Flags().StringVar(&apiKey, "api-key", "", "Plaintext upstream API key")

	return command
}
