package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/improv-battle/backend/internal/client/credential"
	"github.com/zhouzirui/improv-battle/backend/internal/config"
	"github.com/zhouzirui/improv-battle/backend/internal/logging"
	issuer "github.com/zhouzirui/improv-battle/backend/internal/service/credential"
	"github.com/zhouzirui/improv-battle/backend/internal/tui"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "improv",
		Short: "Improv Battle terminal client",
		Long: `Improv Battle is a voice improv game show hosted by an AI.

The play command asks the backend for connection details, joins the room and
follows the host: who is speaking and what has been said.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newPlayCmd(), newAgentTokenCmd())
	return rootCmd
}

func newPlayCmd() *cobra.Command {
	var (
		apiBase  string
		name     string
		logFile  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start a game session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := setupClientLogging(logFile, logLevel)
			if err != nil {
				return err
			}
			defer closeLog()

			client := credential.NewClient(apiBase, nil)
			m := tui.NewModel(client, tui.RelayConnector{APIBase: client.BaseURL()}, name)

			log.Info().Str("component", "client").Str("api", client.BaseURL()).Msg("starting client")
			final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			if fm, ok := final.(tui.Model); ok {
				fm.Bootstrap().Disconnect()
			}
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return errors.Wrap(err, "run terminal ui")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiBase, "api", envOrDefault("IMPROV_API", "http://localhost:8080"), "Backend base URL")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Pre-fill the stage name")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file (default: discard)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	return cmd
}

// setupClientLogging keeps the terminal free for the UI; logs go to a file or nowhere.
func setupClientLogging(path, level string) (func(), error) {
	var w io.Writer = io.Discard
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %s", path)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	if _, err := logging.Setup(level, "json", w); err != nil {
		closeFn()
		return nil, err
	}
	return closeFn, nil
}

func newAgentTokenCmd() *cobra.Command {
	var (
		room     string
		identity string
	)

	cmd := &cobra.Command{
		Use:   "agent-token",
		Short: "Mint a host agent token for a room",
		Long: `Mint a token that lets the AI host join a room and publish its state and
transcriptions through the relay. Reads LIVEKIT_API_KEY and LIVEKIT_API_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := issueAgentToken(cmd.Context(), cfg.LiveKit, room, identity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "Room name (required)")
	cmd.Flags().StringVar(&identity, "identity", "", "Agent identity (default improv-host)")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func issueAgentToken(ctx context.Context, cfg config.LiveKitConfig, room, identity string) (string, error) {
	return issuer.NewIssuer(cfg.IssuerConfig()).IssueAgent(ctx, room, identity)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
