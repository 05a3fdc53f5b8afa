// Package cli is the offline flowctl tool: it sorts, renumbers and runs
// workflow graphs stored as JSON files.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"autoflow"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "AUTOFLOW"

type app struct {
	v       *viper.Viper
	cfgFile string
	logger  zerolog.Logger
}

// NewRootCommand builds the flowctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "flowctl",
		Short: "Inspect and run autoflow workflow graphs",
		Long: `flowctl works on workflow graphs exported from the editor as JSON
({"nodes": [...], "edges": [...]}). It prints the execution order, renumbers
steps and runs a graph locally with the same engine as the API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./flowctl.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	_ = a.v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(
		a.sortCommand(),
		a.reindexCommand(),
		a.runCommand(),
		versionCommand(),
	)
	return rootCmd
}

// Execute runs flowctl and exits non zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) init(cmd *cobra.Command) error {
	if err := a.readConfig(); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(a.v.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("invalid log level %q", a.v.GetString("log_level"))
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05"}).
		Level(level).With().Timestamp().Logger()
	return nil
}

// readConfig layers the config file and AUTOFLOW_* variables over the
// defaults. A missing default config file is not an error.
func (a *app) readConfig() error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	a.v.SetDefault("ollama_host", "http://localhost:11434")
	a.v.SetDefault("google.token_url", "https://oauth2.googleapis.com/token")
	a.v.SetDefault("smtp.port", 587)
	a.v.SetDefault("smtp.use_tls", true)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName("flowctl")
		a.v.AddConfigPath(".")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// appConfig maps the flowctl settings onto the server configuration used to
// wire the node handlers.
func (a *app) appConfig() autoflow.AppConfig {
	var cfg autoflow.AppConfig
	cfg.Mode = "cli"
	cfg.OllamaHost = a.v.GetString("ollama_host")
	cfg.GoogleConfig.ClientID = a.v.GetString("google.client_id")
	cfg.GoogleConfig.ClientSecret = a.v.GetString("google.client_secret")
	cfg.GoogleConfig.TokenURL = a.v.GetString("google.token_url")
	cfg.SMTPConfig.Host = a.v.GetString("smtp.host")
	cfg.SMTPConfig.Port = a.v.GetInt("smtp.port")
	cfg.SMTPConfig.Username = a.v.GetString("smtp.username")
	cfg.SMTPConfig.Password = a.v.GetString("smtp.password")
	cfg.SMTPConfig.From = a.v.GetString("smtp.from")
	cfg.SMTPConfig.UseTLS = a.v.GetBool("smtp.use_tls")
	return cfg
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "flowctl %s\n", autoflow.Version)
			return err
		},
	}
}
