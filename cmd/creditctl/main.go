package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/qs3c/iris_server/internal/app"
)

// creditctl 积分运维命令：手动执行重置、查看账本、直接开通套餐
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	configPath string
	core       *app.Core
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:          "creditctl",
		Short:        "Inspect and operate user credit ledgers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			core, err := app.Open(c.configPath)
			if err != nil {
				return err
			}
			c.core = core
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.core != nil {
				c.core.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", app.ConfigPath(), "Config file path")

	rootCmd.AddCommand(newSweepCommand(c))
	rootCmd.AddCommand(newShowCommand(c))
	rootCmd.AddCommand(newGrantCommand(c))
	return rootCmd
}

func newSweepCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the daily expiry and reset sweep now (ledgers already reset today are left as is)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.core.SweepService().RunDailyReset(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newShowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's normalized plan and balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			view, err := c.core.Credits.GetPlan(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
}

func newGrantCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id> <plan>",
		Short: "Activate a plan for a user without payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			ledger, err := c.core.Credits.ApplyPlanChange(cmd.Context(), userID, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, ledger)
		},
	}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
