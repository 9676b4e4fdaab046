package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"finance/internal/display"
	"finance/internal/ledger"

	"github.com/spf13/cobra"
)

func newMigrateCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc.cfg.Database.AutoMigrate = true
			a, err := rc.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSeedCmd(rc *rootConfig) *cobra.Command {
	var (
		username, password string
		deposit            int64
		buys               []string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo account and optionally fund it and buy shares",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			acct, err := a.Auth.Register(ctx, username, password, password)
			if err != nil {
				return fmt.Errorf("register %s: %w", username, err)
			}
			if deposit > 0 {
				if _, err := a.Engine.Deposit(ctx, ledger.DepositRequest{AccountID: acct.ID, Amount: deposit}); err != nil {
					return fmt.Errorf("deposit: %w", err)
				}
			}
			for _, b := range buys {
				symbol, shares, ok := strings.Cut(b, ":")
				if !ok {
					return fmt.Errorf("--buy %q: want SYMBOL:SHARES", b)
				}
				req, err := ledger.ParseBuy(acct.ID, symbol, shares)
				if err != nil {
					return fmt.Errorf("--buy %q: %w", b, err)
				}
				if _, err := a.Engine.Buy(ctx, req); err != nil {
					return fmt.Errorf("buy %s: %w", b, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s (%s)\n", acct.Username, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "demo", "account username")
	cmd.Flags().StringVar(&password, "password", "demo", "account password")
	cmd.Flags().Int64Var(&deposit, "deposit", 0, "whole dollars to deposit after registering")
	cmd.Flags().StringSliceVar(&buys, "buy", nil, "SYMBOL:SHARES to buy, repeatable")
	return cmd
}

func newDepositCmd(rc *rootConfig) *cobra.Command {
	var username, amount string
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Credit whole dollars to an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			acct, err := rc.account(cmd, a, username)
			if err != nil {
				return err
			}
			req, err := ledger.ParseDeposit(acct.ID, amount)
			if err != nil {
				return err
			}
			receipt, err := a.Engine.Deposit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cash now %s\n", display.USD(receipt.Cash))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&amount, "amount", "", "whole dollars")
	return cmd
}

func newRefreshCmd(rc *rootConfig) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Revalue an account's holdings and print the portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			acct, err := rc.account(cmd, a, username)
			if err != nil {
				return err
			}
			p, err := a.Engine.Refresh(cmd.Context(), acct.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tSHARES\tPRICE\tTOTAL\t")
			for _, pos := range p.Holdings {
				mark := ""
				if pos.Stale {
					mark = "stale"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", pos.Symbol, pos.Shares, display.USD(pos.Price), display.USD(pos.Total), mark)
			}
			fmt.Fprintf(w, "CASH\t\t\t%s\t\n", display.USD(p.Cash))
			fmt.Fprintf(w, "TOTAL\t\t\t%s\t\n", display.USD(p.Total))
			if err := w.Flush(); err != nil {
				return err
			}
			for _, warn := range p.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", warn.Symbol, warn.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	return cmd
}

func newHistoryCmd(rc *rootConfig) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print an account's transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			acct, err := rc.account(cmd, a, username)
			if err != nil {
				return err
			}
			txs, err := a.Engine.History(cmd.Context(), acct.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tTYPE\tSYMBOL\tSHARES\tPRICE")
			for _, tr := range txs {
				shares := ""
				if tr.Shares > 0 {
					shares = fmt.Sprint(tr.Shares)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tr.Timestamp.Format("2006-01-02 15:04:05"), tr.Kind, tr.Symbol, shares, display.USD(tr.Price))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	return cmd
}
