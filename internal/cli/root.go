// Package cli holds the cobra commands behind aiden-watch and
// aiden-mockfeed.
package cli

import (
	"errors"
	"fmt"

	"github.com/aiden-platform/aiden-watch/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "aiden-watch",
	Short: "Watch AIDEN agent runs and decide pending reviews",
	Long: `aiden-watch follows the live event feed of one AIDEN project, shows the
run's stage progress and log, and lets you approve, reject or send back the
outputs waiting for human review.`,
	SilenceUsage: true,
	RunE:         runWatch,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/aiden-watch/config.yaml)")
	rootCmd.PersistentFlags().String("url", "", "AIDEN backend base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the backend")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("server.token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.Flags().StringP("project", "p", "", "project id to watch on start")

	rootCmd.AddCommand(configCmd)
}

// initConfig sets defaults and reads the config file when one exists.
func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(config.ConfigDir())
	}
	readErr = v.ReadInConfig()
}

// readErr is the result of reading the config file. A missing default
// file is not an error.
var readErr error

func loadConfig() (*config.Config, error) {
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}
	return config.Load(viper.GetViper())
}
