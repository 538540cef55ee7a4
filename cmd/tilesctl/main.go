package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tilesmart/tiles-admin/cmd/tilesctl/cli"
	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/platform/cache"
	"github.com/tilesmart/tiles-admin/internal/query"
	"github.com/tilesmart/tiles-admin/internal/reports"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:               "tilesctl",
		Short:             "Tiles & Granite reports from the terminal",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./tilesctl.yaml or $HOME/.config/tilesctl/tilesctl.yaml)")
	flags.String("backend-url", "http://127.0.0.1:8000", "backend REST base URL")
	flags.Duration("backend-timeout", 20*time.Second, "backend request timeout")
	flags.String("login-path", "/api/web-login", "backend login path")
	flags.String("redis-addr", "127.0.0.1:6379", "redis address for the export queue")
	flags.String("token", "", "backend bearer token")
	flags.String("username", "", "backend username, used when no token is set")
	flags.String("password", "", "backend password")
	flags.String("log-format", "pretty", "log format (pretty, json)")

	for _, name := range []string{"backend-url", "backend-timeout", "login-path", "redis-addr", "token", "username", "password", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(jobsCmd())
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/tilesctl")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("tilesctl")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("TILESCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	switch viper.GetString("log-format") {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "pretty", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q", viper.GetString("log-format"))
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func reportCmd() *cobra.Command {
	var opts cli.ReportOptions
	cmd := &cobra.Command{
		Use:   "report <name>",
		Short: "Render a report as a table, JSON or a download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := backend.NewClient(viper.GetString("backend-url"), viper.GetDuration("backend-timeout"),
				backend.WithLoginPath(viper.GetString("login-path")))
			if err != nil {
				return err
			}
			creds, err := credentials(ctx, client)
			if err != nil {
				return err
			}
			runner := &cli.ReportRunner{
				Catalog:    reports.NewCatalog(client, query.RegistryConfig{}, reports.Layouts{}),
				Downloader: client,
				Creds:      creds,
			}
			opts.Name = args[0]
			path, err := runner.Run(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if path != "" {
				slog.Info("report written", slog.String("report", opts.Name), slog.String("file", path))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.From, "from", "", "start date (YYYY-MM-DD)")
	f.StringVar(&opts.To, "to", "", "end date (YYYY-MM-DD)")
	f.Int64Var(&opts.ID, "id", 0, "record id for detail reports")
	f.StringVar(&opts.Filter, "filter", "", "keep rows containing this text")
	f.StringVar(&opts.Sort, "sort", "", "column key to sort by")
	f.BoolVar(&opts.Desc, "desc", false, "sort descending")
	f.StringSliceVar(&opts.Hide, "hide", nil, "column keys to hide")
	f.StringVar(&opts.Format, "format", cli.FormatTable, "output format (table, json, pdf, xlsx, csv)")
	f.StringVarP(&opts.Out, "out", "o", "", "output file for pdf, xlsx and csv")
	return cmd
}

func credentials(ctx context.Context, client *backend.Client) (backend.Credentials, error) {
	if token := viper.GetString("token"); token != "" {
		return backend.ParseToken(token), nil
	}
	username, password := viper.GetString("username"), viper.GetString("password")
	if username == "" || password == "" {
		return backend.Credentials{}, errors.New("set --token or --username and --password")
	}
	return client.Login(ctx, username, password)
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the export queue",
	}
	var size int
	failed := &cobra.Command{
		Use:   "failed",
		Short: "List exports that exhausted their retries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJobs(func(c *cli.JobsCLI) error {
				tasks, err := c.Failed(size)
				if err != nil {
					return err
				}
				return cli.WriteFailed(cmd.OutOrStdout(), tasks)
			})
		},
	}
	failed.Flags().IntVar(&size, "size", 10, "number of tasks to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show export queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJobs(func(c *cli.JobsCLI) error {
				stats, err := c.Stats()
				if err != nil {
					return err
				}
				return cli.WriteStats(cmd.OutOrStdout(), stats)
			})
		},
	}, failed)
	return cmd
}

func withJobs(fn func(*cli.JobsCLI) error) error {
	opts, err := cache.QueueOpts(viper.GetString("redis-addr"))
	if err != nil {
		return err
	}
	inspector := asynq.NewInspector(opts)
	defer func() {
		if err := inspector.Close(); err != nil {
			slog.Warn("inspector close", slog.Any("error", err))
		}
	}()
	return fn(cli.NewJobsCLI(inspector))
}
