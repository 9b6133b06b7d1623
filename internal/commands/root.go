// internal/commands/root.go
package flowpipe

import (
	"fmt"
	"os"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	cfgViper      = newViper()
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flowpipe",
	Short: "flowpipe: expose Flowise workflows as chat models",
	Long: `flowpipe lists the chatflows and agentflows of a Flowise instance as selectable
models and answers chat turns against them, streamed or blocking. Run 'flowpipe serve'
to attach it to OpenWebUI as an OpenAI-compatible connection.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := appconfig.ReadFile(cfgViper, cfgFile); err != nil {
			return err
		}
		cfg, err := appconfig.FromViper(cfgViper)
		if err != nil {
			return err
		}
		currentConfig = &cfg

		if err := logging.Init(currentConfig.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.SetDebug(currentConfig.Debug)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")
	rootCmd.PersistentFlags().String("flowiseUrl", "", "base URL of the Flowise instance (env FLOWISE_API_URL)")
	rootCmd.PersistentFlags().Int("timeout", 0, "seconds before a Flowise request times out (0 = default)")
	rootCmd.PersistentFlags().Bool("metrics", false, "collect per-workflow latency metrics")
	rootCmd.PersistentFlags().String("metricsFile", "", "persist collected metrics to this JSON file")

	for _, name := range []string{"debug", "logFile", "flowiseUrl", "timeout", "metrics", "metricsFile"} {
		_ = cfgViper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	appconfig.SetDefaults(v)
	return v
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
