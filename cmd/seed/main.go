// seed creates the admin voter used to reach the /admin endpoints.
// Idempotent: an existing account with the same email is left untouched.
//
//	go run ./cmd/seed --email admin@example.com --password 'S3cure!pass'
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"election-voting/auth/internal/config"
	"election-voting/auth/internal/db"
	"election-voting/auth/internal/security"
	voterdomain "election-voting/auth/internal/voter/domain"
	voterrepo "election-voting/auth/internal/voter/repository"
)

const (
	defaultAdminEmail    = "admin@example.com"
	defaultAdminPassword = "ChangeMe123"
)

var (
	adminEmail    string
	adminPassword string
)

var rootCmd = &cobra.Command{
	Use:          "seed",
	Short:        "Create the development admin voter",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.IsProduction() && adminPassword == defaultAdminPassword {
			return errors.New("seed: --password is required when APP_ENV=production")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		voters := voterrepo.NewPostgresRepository(pool)

		email := strings.ToLower(strings.TrimSpace(adminEmail))
		existing, err := voters.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "seed: %s already exists, skipping\n", email)
			return nil
		}

		hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(adminPassword))
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		v := &voterdomain.Voter{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			IsAdmin:      true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := v.Validate(); err != nil {
			return err
		}
		if err := voters.Create(ctx, v); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seed: created admin %s (%s)\n", email, v.ID)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&adminEmail, "email", defaultAdminEmail, "admin email")
	rootCmd.Flags().StringVar(&adminPassword, "password", defaultAdminPassword, "admin password")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
