// Package main provides the mpovm CLI: exact outcome distributions,
// sampling and cross estimation for matrix-product measurements, plus the
// sample store and the HTTP service.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aristath/mpmeasure/internal/config"
	"github.com/aristath/mpmeasure/pkg/logger"
)

const (
	configFileName = "mpovm"
	configFileType = "yaml"
	envPrefix      = "MPOVM"
)

var (
	// configFile is set by the --config flag.
	configFile string

	// cfg and log are initialized by PersistentPreRunE.
	cfg *config.Config
	log zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mpovm",
	Short: "Measurements on matrix-product states",
	Long: `mpovm computes outcome distributions of local and multi-site measurements
on matrix-product states, density operators and purifications, draws outcome
samples and estimates probabilities and linear functions of them, including
from samples of a different measurement.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: ./mpovm.yaml or ~/.config/mpovm/mpovm.yaml)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("data-dir", "", "directory of the sample store")
	flags.Float64("eps", 0, "numerical tolerance")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(pmfCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
}

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "mpovm", version)
	},
}

// initConfig loads the config file, environment and flags into cfg.
func initConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	v, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	bindFlag(v, cmd, config.KeyLogLevel, "log-level")
	bindFlag(v, cmd, config.KeyDataDir, "data-dir")
	bindFlag(v, cmd, config.KeyEps, "eps")

	cfg, err = config.FromViper(v)
	if err != nil {
		return err
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)
	return nil
}

// loadConfig reads the config file with Viper. A missing default config
// file is not an error; an explicit --config file must exist.
func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return v, nil
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(".")
	if home, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, "mpovm"))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// bindFlag lets an explicitly set flag override the config key.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v.Set(key, f.Value.String())
	}
}
