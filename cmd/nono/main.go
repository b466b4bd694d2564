package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/nono-backend/internal/app"
	"github.com/yungbote/nono-backend/internal/clients/redis"
	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/llm"
	"github.com/yungbote/nono-backend/internal/llm/backend"
	"github.com/yungbote/nono-backend/internal/persona"
	"github.com/yungbote/nono-backend/internal/platform/logger"
	"github.com/yungbote/nono-backend/internal/platform/shutdown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nono",
		Short:         "Persona chat relay in front of a local LLM server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newPersonasCmd(), newCheckCmd(), newModelsCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := shutdown.NotifyContext(cmd.Context())
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.Log.Info("starting server", "addr", cfg.HTTP.Addr, "backend", cfg.LLM.Backend, "model", cfg.LLM.Model)
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides NONO_HTTP_ADDR)")
	return cmd
}

func newPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "Print the loaded persona catalog as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := logger.New(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()
			reg, err := persona.Load(cfg.Chat.PersonasPath, log)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"personas": reg.List()})
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify Redis and the LLM backend are reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := logger.New(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			rdb, err := redis.NewClient(ctx, log, cfg.Redis)
			if err != nil {
				return err
			}
			_ = rdb.Close()

			gw, err := backend.New(cfg.LLM, log, nil)
			if err != nil {
				return err
			}
			if !gw.HealthCheck(ctx) {
				return fmt.Errorf("llm backend %s at %s is not reachable", gw.Name(), cfg.LLM.BaseURL)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: redis %s, %s %s (%d models)\n",
				cfg.Redis.Addr, gw.Name(), cfg.LLM.BaseURL, len(gw.ListModels(ctx)))
			return nil
		},
	}
}

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List, pull or switch the LLM backend's models",
	}
	cmd.AddCommand(newModelsListCmd(), newModelsPullCmd(), newModelsUseCmd())
	return cmd
}

// openManager builds the configured backend outside of a running server.
func openManager() (llm.Gateway, llm.ModelManager, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	gw, err := backend.New(cfg.LLM, log, nil)
	if err != nil {
		log.Sync()
		return nil, nil, nil, err
	}
	mm, ok := gw.(llm.ModelManager)
	if !ok {
		log.Sync()
		return nil, nil, nil, llm.Wrap(gw.Name(), "model", llm.ErrUnsupported)
	}
	return gw, mm, func() { log.Sync() }, nil
}

func newModelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the models the backend reports as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, mm, done, err := openManager()
			if err != nil {
				return err
			}
			defer done()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"backend": gw.Name(),
				"active":  mm.Model(),
				"models":  gw.ListModels(cmd.Context()),
			})
		},
	}
}

func newModelsPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <model>",
		Short: "Download a model into the backend's store (Ollama only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, mm, done, err := openManager()
			if err != nil {
				return err
			}
			defer done()
			if err := mm.PullModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %s on %s\n", args[0], gw.Name())
			return nil
		},
	}
}

type modelChange struct {
	Model   string `json:"model"`
	Backend string `json:"backend"`
	Active  string `json:"active"`
}

// newModelsUseCmd switches the model of a running server; the choice lasts
// until that process exits.
func newModelsUseCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "use <model>",
		Short: "Switch a running server to a model the backend already lists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := llm.NewTransport("nono", server, "", nil)
			if err != nil {
				return err
			}
			var res modelChange
			err = t.DoJSON(cmd.Context(), 30*time.Second, http.MethodPost, "/api/models/use", map[string]string{"model": args[0]}, &res)
			var he *llm.HTTPError
			if errors.As(err, &he) {
				return fmt.Errorf("server refused model %q: status=%d %s", args[0], he.StatusCode, he.Body)
			}
			if err != nil {
				return fmt.Errorf("contact server %s: %w", server, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active model on %s: %s\n", res.Backend, res.Active)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8000", "base URL of the running nono server")
	return cmd
}
