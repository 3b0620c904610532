// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the bibfetch CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/bibfetch/internal/config"
	"github.com/pdiddy/bibfetch/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds values loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

// rootCmd is the base command for the bibfetch CLI.
var rootCmd = &cobra.Command{
	Use:   "bibfetch",
	Short: "Download the PDFs cited in a bibliography",
	Long: `bibfetch turns a pasted reference list into a folder of PDFs. Each citation
is resolved through DOI redirects, open-access lookups, bibliographic search
and, optionally, a real browser. Citations that cannot be fetched
automatically are opened for you and picked up from your downloads folder.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/", os.Stderr)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", s.Keys())
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./bibfetch.yaml or ~/.config/bibfetch/bibfetch.yaml)")
	rootCmd.PersistentFlags().String("journal", "", "run journal database (default ~/.config/bibfetch/journal.db)")
	viper.BindPFlag(config.KeyJournal, rootCmd.PersistentFlags().Lookup("journal"))
}

func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	config.SetDefaults(viper.GetViper())

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bibfetch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "bibfetch"))
		}
	}

	viper.SetEnvPrefix("BIBFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
