package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "beectl",
	Short: "admin CLI for the bee node",
	Long: `beectl is the admin CLI of the bee node.
It provides:
      - key generation for the milestone signer set
      - ledger state inspection on the database level
      - snapshot export and import
`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		initConfig()
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file name")
	initKeygenCmd()
	initDBCmd()
	initSnapshotCmd()
}

func initConfig() {
	if configFile != "" {
		viper.SetConfigName(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("bee")
		viper.SetConfigType("yaml")
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		_, _ = fmt.Fprintf(os.Stderr, "Using config profile: %s\n", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
