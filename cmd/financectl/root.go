package main

import (
	"errors"
	"fmt"

	"finance/internal/app"
	"finance/internal/config"
	"finance/internal/database"
	"finance/internal/logger"
	"finance/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootConfig struct {
	configDir string
	cfg       *config.Config
	log       *logrus.Logger
}

func newRootCmd() *cobra.Command {
	rc := &rootConfig{}
	cmd := &cobra.Command{
		Use:           "financectl",
		Short:         "Administer the finance ledger database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rc.configDir)
			if err != nil {
				return err
			}
			log, err := logger.NewWithOutput(cfg.Service.LogLevel, cfg.Service.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rc.cfg, rc.log = cfg, log
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&rc.configDir, "config", ".", "directory holding finance.yaml")

	cmd.AddCommand(
		newMigrateCmd(rc),
		newSeedCmd(rc),
		newDepositCmd(rc),
		newRefreshCmd(rc),
		newHistoryCmd(rc),
	)
	return cmd
}

func (rc *rootConfig) open(cmd *cobra.Command) (*app.App, error) {
	return app.New(cmd.Context(), rc.cfg, rc.log)
}

func (rc *rootConfig) account(cmd *cobra.Command, a *app.App, username string) (models.Account, error) {
	if username == "" {
		return models.Account{}, errors.New("--username is required")
	}
	acct, err := a.Repo.GetAccountByUsername(cmd.Context(), username)
	if errors.Is(err, database.ErrNotFound) {
		return models.Account{}, fmt.Errorf("no account named %q", username)
	}
	return acct, err
}
