package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/specdrive/specdrive/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "specdrive",
	Short: "Spec-driven coding agent orchestrator",
	Long: `Specdrive drives an autonomous coding agent through an ordered task
list, gates completion behind multi-reviewer approval, and hands the
result off to a human. Progress is persisted after every transition, so
an interrupted run resumes where it stopped.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./specdrive.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("specdrive")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/specdrive")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SPECDRIVE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SPECDRIVE_REVIEW_MAX_RETRIES for review.max_retries
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
