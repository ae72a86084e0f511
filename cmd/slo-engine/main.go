package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "slo-engine",
		Short:         "AP invoice SLO measurement and error-budget engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (defaults to $AP_SLO_CONFIG)")

	cfgPath := func() string { return configPath }
	root.AddCommand(newServeCommand(cfgPath))
	root.AddCommand(newRunCommand(cfgPath))
	root.AddCommand(newCalculateCommand(cfgPath))
	root.AddCommand(newAlertsCommand(cfgPath))
	root.AddCommand(newDashboardCommand(cfgPath))
	root.AddCommand(newHistoryCommand(cfgPath))
	root.AddCommand(newSLOCommand(cfgPath))
	root.AddCommand(newCatalogueCommand())
	root.AddCommand(newEventsCommand(cfgPath))
	return root
}
