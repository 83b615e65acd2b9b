package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KamdynS/payroll-agents/agent/catalog"
	"github.com/KamdynS/payroll-agents/config"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agent catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cat, err := catalog.LoadFile(cfg.Agents.CatalogFile)
		if err != nil {
			return err
		}
		name := color.New(color.Bold)
		for _, e := range cat.Entries() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-11s %s  %s\n", e.Type, name.Sprint(e.DisplayName), e.Model)
			fmt.Fprintf(cmd.OutOrStdout(), "            %s\n", e.Capability)
		}
		return nil
	},
}
