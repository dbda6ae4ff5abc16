package main

import (
	"errors"
	"fmt"
	"time"

	"btc-custody/config"
	"btc-custody/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	owner      string
	expiry     time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:          "tokengen",
		Short:        "Mint an owner JWT for the custody API",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := loadTokenService(flags)
			if err != nil {
				return err
			}

			ownerID := uuid.New()
			if flags.owner != "" {
				ownerID, err = uuid.Parse(flags.owner)
				if err != nil {
					return fmt.Errorf("invalid --owner: %w", err)
				}
			}

			token, expiresAt, err := tokens.Generate(ownerID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "owner:   %s\n", ownerID)
			fmt.Fprintf(out, "expires: %s\n", expiresAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "token:   %s\n", token)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: ./config.yaml or ./config/config.yaml)")
	cmd.Flags().StringVar(&flags.owner, "owner", "", "owner UUID (default: random)")
	cmd.Flags().DurationVar(&flags.expiry, "expiry", 0, "token lifetime (default: jwt.expiry from config)")

	cmd.AddCommand(newVerifyCmd(flags))
	return cmd
}

func newVerifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Validate a token and print its owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := loadTokenService(flags)
			if err != nil {
				return err
			}

			claims, err := tokens.Validate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner:   %s\n", claims.OwnerID)
			return nil
		},
	}
}

func loadTokenService(flags *rootFlags) (*service.JWTTokenService, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt.secret is not set (CUSTODY_JWT_SECRET)")
	}

	expiry := cfg.JWT.Expiry
	if flags.expiry > 0 {
		expiry = flags.expiry
	}
	return service.NewJWTTokenService(cfg.JWT.Secret, expiry, cfg.JWT.Issuer), nil
}
