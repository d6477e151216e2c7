package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomview/internal/adapters/token"
	"github.com/dkeye/roomview/internal/adapters/tui"
	"github.com/dkeye/roomview/internal/adapters/wsroom"
	"github.com/dkeye/roomview/internal/app"
	"github.com/dkeye/roomview/internal/config"
	"github.com/dkeye/roomview/internal/domain"
)

func main() {
	room := flag.String("room", "", "room to prefill in the join form")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	// the terminal belongs to the TUI until config says where logs go
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Client.LogFile != "" {
		f, err := os.OpenFile(cfg.Client.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
	}

	var denied []domain.TrackKind
	for _, d := range cfg.Client.DisabledDevices {
		if k := domain.TrackKind(strings.TrimSpace(d)); k.Valid() {
			denied = append(denied, k)
		}
	}

	bridge := tui.NewBridge()
	tokens := token.NewHTTPSource(cfg.Client.ServerURL, &http.Client{Timeout: 10 * time.Second})
	newRoom := func() app.Room {
		return wsroom.New(wsroom.Options{
			ReconnectAttempts: cfg.Client.ReconnectAttempts,
			DeniedDevices:     denied,
		})
	}
	client := app.NewClient(tokens, newRoom, bridge, bridge, config.NewNameFile(cfg.Client.NameFile), app.Options{
		ReconcileInterval: cfg.Client.ReconcileInterval,
		SettleDelay:       cfg.Client.SettleDelay,
		AutoFocus:         cfg.Client.AutoFocus,
	})

	p := tea.NewProgram(tui.NewModel(client, *room, strings.TrimRight(cfg.Client.ServerURL, "/")+"/"), tea.WithAltScreen())
	bridge.Attach(p)
	_, err = p.Run()
	bridge.Close()
	if err != nil {
		log.Error().Err(err).Msg("tui")
		fmt.Fprintln(os.Stderr, "tui:", err)
		os.Exit(1)
	}
}
