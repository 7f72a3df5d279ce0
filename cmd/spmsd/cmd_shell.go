package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"parking-booking-backend/internal/intake"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Read booking commands from standard input",
	Long:  "Start an interactive session. Commands are read one per line until endProgram; or end of input.",
	RunE:  runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "~~ WELCOME TO PolyU ~~")
	return repl(cmd.Context(), a.session, cmd.InOrStdin(), out, stdinIsTerminal())
}

// repl feeds lines from in to the session until endProgram or EOF.
func repl(ctx context.Context, session *intake.Session, in io.Reader, out io.Writer, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "\nPlease enter booking:\n")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		reply, err := session.Execute(ctx, scanner.Text())
		if errors.Is(err, intake.ErrSessionClosed) {
			return nil
		}
		if err != nil {
			logger.Error().Err(err).Msg("command failed")
		}
		if reply.Message != "" {
			fmt.Fprintln(out, reply.Message)
		}
		if reply.Exit {
			return nil
		}
	}
}

// stdinIsTerminal reports whether standard input looks interactive.
func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
