package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/flowstore/pkg/config"
	"github.com/nimburion/flowstore/pkg/store"
	"github.com/nimburion/flowstore/pkg/version"
)

// Options configures the flowctl command tree.
type Options struct {
	Name        string
	Description string
	// ConfigPath is the default of --config-file.
	ConfigPath string
	// EnvPrefix is the default of --env-prefix.
	EnvPrefix string
	// Provider, when set, replaces the store provider opened from configuration. It is not
	// closed by the commands.
	Provider *store.Provider
}

type rootFlags struct {
	configFile   string
	envPrefix    string
	printMetrics bool
}

// NewRootCommand creates the flowctl CLI with version, config, healthcheck, records, cache
// and state subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "flowctl"
	}
	if opts.Description == "" {
		opts.Description = "Inspect and maintain flow document, cache and state stores"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}

	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config-file", "c", opts.ConfigPath, "config file path")
	pf.StringVar(&flags.envPrefix, "env-prefix", opts.EnvPrefix, "prefix of configuration environment variables")
	pf.BoolVar(&flags.printMetrics, "print-metrics", false, "write the collected metrics to stderr on exit")
	pf.String("logging.level", "", "log level override (debug, info, warn, error)")
	pf.String("storage.url", "", "storage URL override (mongodb://..., memory://)")

	env := &environment{opts: opts, flags: flags}

	rootCmd.AddCommand(
		newVersionCommand(opts.Name),
		newConfigCommand(env),
		newHealthcheckCommand(env),
		newRecordsCommand(env),
		newCacheCommand(env),
		newStateCommand(env),
	)
	return rootCmd
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
		},
	}
}

func newConfigCommand(env *environment) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return configCmd
}

// Execute runs the command until it returns or the process is interrupted, and exits with
// an appropriate code.
func Execute(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
