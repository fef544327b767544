package main

import (
	"context"
	"database/sql"
	"time"

	"entitlement-service/internal/common/config"
	"entitlement-service/internal/common/database"
	"entitlement-service/internal/common/logger"
	"entitlement-service/internal/models"

	"github.com/spf13/cobra"
)

// ledgerReader is the read side of the ledger store used by the usage command.
type ledgerReader interface {
	Find(ctx context.Context, userID, month string) (*models.UsageLedger, error)
}

type commandContext struct {
	configFlag *string
	cfg        *config.Config
	log        logger.Logger
	now        func() time.Time

	// openDB is replaced in tests.
	openDB func(cfg *config.Config) (*sql.DB, error)
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		log:        logger.NewNoOpLogger(),
		now:        time.Now,
		openDB: func(cfg *config.Config) (*sql.DB, error) {
			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return nil, err
			}
			return pg.GetDB(), nil
		},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	var (
		cfg *config.Config
		err error
	)
	if c.configFlag != nil && *c.configFlag != "" {
		cfg, err = config.LoadFromFile(*c.configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.log = logger.NewStructured(cfg.Logging.Level, "console", "stderr")
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	return buildRootCommand(newCommandContext(&configFlag))
}

func buildRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "entitlement-admin",
		Short:         "Inspect plans and usage ledgers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(ctx.configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newPlansCommand())
	rootCmd.AddCommand(newUsageCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))

	return rootCmd
}
