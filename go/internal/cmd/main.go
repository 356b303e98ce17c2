package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	config     *Config
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "splitkeeper",
		Short:         "Speedrun timer daemon with replicated splits storage",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Debug().Err(err).Msg("could not load .env file")
			}
			config, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			setupLogging(config.LogLevel)
			c.config = config
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to the YAML config file")

	root.AddCommand(
		c.newServeCmd(),
		c.newSplitsCmd(),
		c.newMigrateCmd(),
		c.newCtlCmd(),
		c.newSplitsIOCmd(),
	)
	return root
}

func (c *cli) newServeCmd() *cobra.Command {
	var stdin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the timer with the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			var in io.Reader
			if stdin {
				in = cmd.InOrStdin()
			}
			return c.serve(ctx, in)
		},
	}
	cmd.Flags().BoolVar(&stdin, "stdin", true, "read control commands from standard input")
	return cmd
}

func (c *cli) serve(ctx context.Context, in io.Reader) error {
	st, err := setupStorage(ctx, c.config)
	if err != nil {
		return err
	}
	services, err := setupServices(ctx, c.config, st)
	if err != nil {
		st.Close()
		return err
	}
	defer services.Close()

	server, err := setupServer(c.config, services)
	if err != nil {
		return err
	}

	if services.Ticks != nil {
		if err := services.Ticks.Start(ctx); err != nil {
			return err
		}
	}

	if c.config.RemoteURL != "" {
		if err := services.Session.ConnectToServerOrDisconnect(ctx, c.config.RemoteURL); err != nil {
			log.Warn().Err(err).Str("url", c.config.RemoteURL).Msg("could not connect to control server")
		}
	}

	if in != nil {
		go readCommands(ctx, in, services)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("control api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// readCommands applies control commands read line by line. Besides the
// timer commands it understands "save", which stores the current run.
func readCommands(ctx context.Context, in io.Reader, services *Services) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		switch line {
		case "":
			continue
		case "save":
			if key, err := services.Session.SaveSplits(); err == nil {
				log.Info().Str("key", key).Msg("saving splits")
			}
		default:
			if !services.Session.Execute(line) {
				log.Warn().Str("line", line).Msg("unrecognized command")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("failed to read commands")
	}
}

func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage migrations and seed the replicated store",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := setupStorage(cmd.Context(), c.config)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "local store at schema version %d\n", st.Local.Version())
			return nil
		},
	}
}
