package cli

import (
	"context"
	"errors"
	"io"
	"path/filepath"

	"github.com/chzyer/readline"

	"github.com/quorum-sim/generals/internal/daemon"
)

// completer offers every command name and its fixed argument values.
var completer = readline.NewPrefixCompleter(
	readline.PcItem("actual-order",
		readline.PcItem("attack"),
		readline.PcItem("retreat"),
	),
	readline.PcItem("g-state"),
	readline.PcItem("g-kill"),
	readline.PcItem("g-add"),
	readline.PcItem("history"),
	readline.PcItem("exit"),
)

// runREPL reads commands until exit, Ctrl+C, EOF or ctx is cancelled.
func runREPL(ctx context.Context, sh *Shell) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Command: ",
		HistoryFile:     filepath.Join(daemon.Home(), "history"),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	// Redraw the prompt around anything printed while a line is edited.
	prev := sh.SetOutput(rl.Stdout())
	defer sh.SetOutput(prev)

	// A signal cancels ctx while Readline blocks; closing unblocks it.
	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	for {
		rl.Write([]byte("\n"))
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if sh.Execute(ctx, line) {
			return nil
		}
	}
}
