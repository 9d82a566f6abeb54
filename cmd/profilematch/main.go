// Package main is the entry point for the profilematch CLI.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/profilematch/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// settings is the resolved configuration, ready once PersistentPreRunE ran.
var settings *viper.Viper

// flagKeys maps flags whose config key is not the flag name with dashes
// replaced by underscores.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"timeout":      "http.timeout",
	"fingerprint":  "http.fingerprint",
	"user-agent":   "http.user_agents",
	"ua-strategy":  "http.ua_strategy",
	"proxy-file":   "http.proxy_file",
	"bearer-token": "x.bearer_token",
	"api-url":      "x.base_url",
}

// rootCmd is the base command for the profilematch CLI.
var rootCmd = &cobra.Command{
	Use:   "profilematch",
	Short: "Find people's professional profiles by cross-checking two search engines",
	Long: `profilematch reads a CSV of people, searches each one on two web search
engines restricted to a profile domain, and records a confirmed profile link
when both engines' top results point at the same profile.

The export command produces the input CSV from a social-network list; the
report command summarizes stored results.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables win.
		_ = godotenv.Load()

		cfgFile, _ := cmd.Flags().GetString("config")
		v, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		if err := bindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		settings = v

		logger, err := newLogger(os.Stderr, v.GetString("log.level"), v.GetString("log.format"))
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		if used := v.ConfigFileUsed(); used != "" {
			logger.Debug("using config file", "path", used)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./profilematch.yaml or ~/.config/profilematch/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
}

// bindFlags makes every flag of the running command override its config key
// when set on the command line.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" || f.Name == "help" {
			return
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
