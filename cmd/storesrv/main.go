package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "storesrv",
		Short: "Storeforge multi-tenant store server",
	}
)

func init() {
	storecommon.InitLogger()
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", storecommon.DefaultConfigFile, "path to TOML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(provisionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
