package main

import (
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kingrea/paneler/internal/tui"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive pipeline dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isatty.IsTerminal(os.Stdout.Fd()) {
				return errors.New("tui needs a terminal; use `paneler run` instead")
			}
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			// Use alternate screen buffer (like vim does)
			p := tea.NewProgram(tui.NewApp(s.mctx, s.engine, s.def), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}
