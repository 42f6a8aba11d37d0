package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/servhub"
	"github.com/loykin/servhub/internal/history"
	"github.com/loykin/servhub/pkg/client"
)

// apiFlags holds connection flags shared by the client-side commands.
type apiFlags struct {
	URL     string
	Timeout time.Duration
}

func (f *apiFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.URL, "api-url", "http://localhost:8080/api", "servhub daemon API URL")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 10*time.Second, "API request timeout")
}

func (f *apiFlags) client() *client.Client {
	return client.New(client.Config{BaseURL: f.URL, Timeout: f.Timeout})
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "servhub",
		Short: "Manage locally-hosted server instances",
	}
	root.AddCommand(
		newServeCmd(),
		newListCmd(),
		newRefreshCmd(),
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newDeleteCmd(),
		newSetCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the servhub daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := servhub.LoadConfig(configPath)
			if err != nil {
				return err
			}
			mgr, err := servhub.New(servhub.OptionsFromConfig(cfg))
			if err != nil {
				return err
			}

			var sinks []servhub.HistorySink
			for _, sc := range cfg.History {
				sink, err := history.NewSink(sc)
				if err != nil {
					return fmt.Errorf("failed to configure history sink: %w", err)
				}
				sinks = append(sinks, sink)
			}
			mgr.SetHistorySinks(sinks...)

			if err := servhub.RegisterMetricsDefault(); err != nil {
				return err
			}
			if cfg.Metrics != "" {
				go func() { _ = servhub.ServeMetrics(cfg.Metrics) }()
			}

			if err := mgr.Refresh(cmd.Context()); err != nil {
				return err
			}

			srv, err := servhub.NewHTTPServer(cfg.Listen, cfg.BasePath, mgr)
			if err != nil {
				return err
			}
			fmt.Printf("servhub listening on %s%s\n", cfg.Listen, cfg.BasePath)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "servhub.toml", "path to config file")
	return cmd
}

func newListCmd() *cobra.Command {
	var api apiFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List managed servers and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := api.client().List(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range servers {
				fmt.Printf("%-30s %-10s %s\n", s.Key, s.Status, s.Title)
			}
			return nil
		},
	}
	api.register(cmd)
	return cmd
}

func newRefreshCmd() *cobra.Command {
	var api apiFlags
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rescan local server instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.client().Refresh(cmd.Context())
		},
	}
	api.register(cmd)
	return cmd
}

func newStartCmd() *cobra.Command {
	var api apiFlags
	cmd := &cobra.Command{
		Use:   "start KEY",
		Short: "Start a server (KEY is name@version)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.client().Start(cmd.Context(), args[0])
		},
	}
	api.register(cmd)
	return cmd
}

func newStopCmd() *cobra.Command {
	var api apiFlags
	cmd := &cobra.Command{
		Use:   "stop KEY",
		Short: "Stop a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.client().Stop(cmd.Context(), args[0])
		},
	}
	api.register(cmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	var api apiFlags
	cmd := &cobra.Command{
		Use:   "status KEY",
		Short: "Show the runtime status of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := api.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(st)
			return nil
		},
	}
	api.register(cmd)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var api apiFlags
	cmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a stopped server and its local files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.client().Delete(cmd.Context(), args[0])
		},
	}
	api.register(cmd)
	return cmd
}

func newSetCmd() *cobra.Command {
	var api apiFlags
	cmd := &cobra.Command{
		Use:   "set KEY NAME=VALUE [NAME=VALUE...]",
		Short: "Update setting values of a server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			setting := make(map[string]any, len(args)-1)
			for _, kv := range args[1:] {
				i := strings.IndexByte(kv, '=')
				if i <= 0 {
					return fmt.Errorf("invalid setting %q, expected NAME=VALUE", kv)
				}
				setting[kv[:i]] = kv[i+1:]
			}
			return api.client().UpdateSetting(cmd.Context(), args[0], setting)
		},
	}
	api.register(cmd)
	return cmd
}
