package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/rescp17/lanPeerTalk/pkg/ui"
)

func main() {
	f, _ := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}()
	log.SetOutput(f)
	slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))

	var port int
	cmd := &cobra.Command{
		Use:   "peertalk",
		Short: "Peer-to-peer chat and media sessions for local networks",
	}

	cmd.PersistentFlags().IntVar(&port, "port", 8080, "Port the signaling endpoint listens on")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Discover peers and start chatting",
		Run: func(cmd *cobra.Command, args []string) {
			model := ui.InitialModel(port)
			p := tea.NewProgram(model)
			if _, err := p.Run(); err != nil {
				fmt.Printf("Alas, there's been an error: %v", err)
				os.Exit(1)
			}
		},
	}

	cmd.AddCommand(startCmd)

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}
