package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Divas-Gupta30/kgqa/internal/config"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type rootFlags struct {
	envFiles []string
	logLevel string
	logJSON  bool
}

func newRootCommand() *cobra.Command {
	var (
		flags rootFlags
		cfg   *config.Config
	)
	cmd := &cobra.Command{
		Use:           "kgqa",
		Short:         "Answer questions from a knowledge graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(flags.envFiles...)
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				loaded.Log.Level = flags.logLevel
			}
			if flags.logJSON {
				loaded.Log.JSON = true
			}
			logger.Setup(loaded.Log.Level, loaded.Log.JSON, loaded.Log.AddSource)
			cmd.SetContext(logger.ContextWithLogger(cmd.Context(), logger.GetDefault()))
			*cfg = *loaded
			return nil
		},
	}
	cfg = &config.Config{}
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "Dotenv files to load (default .env)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error, disabled")
	cmd.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "Emit logs as JSON")

	cmd.AddCommand(newAskCommand(cfg))
	cmd.AddCommand(newServeCommand(cfg))
	cmd.AddCommand(newInitSchemaCommand(cfg))
	return cmd
}

func newAskCommand(cfg *config.Config) *cobra.Command {
	var (
		question string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if question == "" {
				question = strings.Join(args, " ")
			}
			if strings.TrimSpace(question) == "" {
				return errors.New("please provide a question with -q or as arguments")
			}
			if err := cfg.ValidateLLM(); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			res := a.orchestrator.Run(ctx, question)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(out, "Answer:", res.Answer)
			fmt.Fprintf(out, "Attempts: %d  Results: %d  Verdict: %s\n", res.Attempts, res.ResultsCount, res.Verdict)
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /ask, /mcp, /health and /metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.ValidateLLM(); err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			addr := ":" + strconv.Itoa(cfg.Server.Port)
			return a.server().ListenAndServe(ctx, addr, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	return cmd
}

func newInitSchemaCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the indexes or tables the graph backend searches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initSchema(cmd.Context(), cfg)
		},
	}
}
