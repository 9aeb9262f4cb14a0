package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"

	"github.com/quorum-sim/generals/internal/domain"
)

// ─── Command Shell ──────────────────────────────────────────────────────────
// A command is looked up by its name and number of arguments, so
// `g-state` and `g-state <id> <state>` are two different commands.

// Quorum is what the shell drives. *launcher.Launcher implements it.
type Quorum interface {
	ActualOrder(ctx context.Context, order domain.Order) (string, error)
	SetState(ctx context.Context, id int, state domain.FaultState) (string, error)
	State(ctx context.Context) (string, error)
	Kill(ctx context.Context, id int) (string, error)
	Add(ctx context.Context, k int) (string, error)
}

// Journal records every command typed into the shell.
type Journal interface {
	RecordCommand(rec domain.CommandRecord) (int64, error)
	RecentCommands(limit int) ([]domain.CommandRecord, error)
}

const defaultHistory = 10

type command struct {
	name   string
	params []string
	desc   string
	valid  func(args []string) bool
	run    func(ctx context.Context, s *Shell, args []string) (string, error)
}

func (c *command) key() string { return commandKey(c.name, len(c.params)) }

func (c *command) usage() string {
	if len(c.params) == 0 {
		return c.name
	}
	return c.name + " <" + strings.Join(c.params, "> <") + ">"
}

func commandKey(name string, arity int) string {
	return name + "/" + strconv.Itoa(arity)
}

// commands lists the shell commands in usage order; exit stays last.
var commands = []*command{
	{
		name:   "actual-order",
		params: []string{"order"},
		desc:   `proposes an order to the primary ("attack" or "retreat")`,
		valid: func(args []string) bool {
			_, err := domain.ParseOrder(args[0])
			return err == nil
		},
		run: func(ctx context.Context, s *Shell, args []string) (string, error) {
			order, _ := domain.ParseOrder(args[0])
			return s.quorum.ActualOrder(ctx, order)
		},
	},
	{
		name:   "g-state",
		params: []string{"id", "state"},
		desc:   `sets the state of the general with id ("faulty" or "non-faulty")`,
		valid: func(args []string) bool {
			_, ok := parseNumber(args[0])
			return ok && (args[1] == "faulty" || args[1] == "non-faulty")
		},
		run: func(ctx context.Context, s *Shell, args []string) (string, error) {
			id, _ := parseNumber(args[0])
			state, _ := domain.ParseFaultState(args[1])
			return s.quorum.SetState(ctx, id, state)
		},
	},
	{
		name: "g-state",
		desc: "returns the system state",
		valid: func([]string) bool {
			return true
		},
		run: func(ctx context.Context, s *Shell, _ []string) (string, error) {
			return s.quorum.State(ctx)
		},
	},
	{
		name:   "g-kill",
		params: []string{"id"},
		desc:   "kills the general with id",
		valid: func(args []string) bool {
			_, ok := parseNumber(args[0])
			return ok
		},
		run: func(ctx context.Context, s *Shell, args []string) (string, error) {
			id, _ := parseNumber(args[0])
			return s.quorum.Kill(ctx, id)
		},
	},
	{
		name:   "g-add",
		params: []string{"k"},
		desc:   "adds k new generals with non-faulty default state",
		valid: func(args []string) bool {
			k, ok := parseNumber(args[0])
			return ok && k >= 1
		},
		run: func(ctx context.Context, s *Shell, args []string) (string, error) {
			k, _ := parseNumber(args[0])
			return s.quorum.Add(ctx, k)
		},
	},
	{
		name: "history",
		desc: "lists the last commands from the journal",
		valid: func([]string) bool {
			return true
		},
		run: func(_ context.Context, s *Shell, _ []string) (string, error) {
			return s.history(defaultHistory)
		},
	},
	{
		name:   "history",
		params: []string{"n"},
		desc:   "lists the last n commands from the journal",
		valid: func(args []string) bool {
			n, ok := parseNumber(args[0])
			return ok && n >= 1
		},
		run: func(_ context.Context, s *Shell, args []string) (string, error) {
			n, _ := parseNumber(args[0])
			return s.history(n)
		},
	},
	{
		name: "exit",
		desc: "terminates the program execution",
		valid: func([]string) bool {
			return true
		},
	},
}

var commandIndex = func() map[string]*command {
	idx := make(map[string]*command, len(commands))
	for _, c := range commands {
		idx[c.key()] = c
	}
	return idx
}()

// parseNumber accepts a non-negative decimal integer.
func parseNumber(s string) (int, bool) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// lookup returns the command a line names, or nil if the line is not a
// valid command.
func lookup(line string) (*command, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	c, ok := commandIndex[commandKey(fields[0], len(fields)-1)]
	if !ok {
		return nil, nil
	}
	args := fields[1:]
	if !c.valid(args) {
		return nil, nil
	}
	return c, args
}

// Usage renders the command list, optionally headed by msg.
func Usage(msg string) string {
	var b strings.Builder
	if msg != "" {
		b.WriteString(msg + "\n")
	}
	b.WriteString("List of available commands:\n")

	data := pterm.TableData{}
	for _, c := range commands {
		data = append(data, []string{c.usage(), c.desc})
	}
	table, err := pterm.DefaultTable.WithData(data).Srender()
	if err != nil {
		for _, row := range data {
			b.WriteString(row[0] + "\t" + row[1] + "\n")
		}
		return b.String()
	}
	b.WriteString(table + "\n")
	return b.String()
}

// ShellConfig configures a Shell.
type ShellConfig struct {
	Quorum  Quorum
	Journal Journal // nil disables journaling and history
	Session string
	Out     io.Writer
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Shell executes command lines against the quorum.
type Shell struct {
	quorum  Quorum
	journal Journal
	session string
	timeout time.Duration

	outMu sync.Mutex
	out   io.Writer

	log zerolog.Logger
	now func() time.Time
}

// NewShell creates a shell.
func NewShell(cfg ShellConfig) *Shell {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Shell{
		quorum:  cfg.Quorum,
		journal: cfg.Journal,
		session: cfg.Session,
		out:     cfg.Out,
		timeout: timeout,
		log:     cfg.Logger.With().Str("component", "shell").Logger(),
		now:     time.Now,
	}
}

// Execute runs one command line and prints its result. It reports true
// once the user asked to exit. Blank lines are ignored.
func (s *Shell) Execute(ctx context.Context, line string) (exit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	c, args := lookup(line)
	if c == nil {
		s.log.Info().Str("command", line).Msg("invalid command")
		s.print(Usage("\nInvalid Command..."))
		s.record(line, domain.OutcomeInvalid, "")
		return false
	}

	s.log.Info().Str("command", line).Msg("command executed")
	if c.run == nil {
		s.record(line, domain.OutcomeOK, "")
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := c.run(ctx, s, args)

	var rej *domain.Rejection
	switch {
	case err == nil:
		s.print(out + "\n")
		s.record(line, domain.OutcomeOK, out)
	case errors.As(err, &rej):
		s.print(rej.Message + "\n")
		s.record(line, domain.OutcomeRejected, rej.Message)
	default:
		s.log.Warn().Err(err).Str("command", line).Msg("command failed")
		s.print(pterm.Error.Sprintln(err.Error()))
		s.record(line, domain.OutcomeError, err.Error())
	}
	return false
}

// Notify prints a message that did not come from a command, such as a
// general that stopped answering.
func (s *Shell) Notify(msg string) {
	s.print(pterm.Warning.Sprintln(msg))
}

// SetOutput redirects everything the shell prints and returns the
// previous writer.
func (s *Shell) SetOutput(w io.Writer) io.Writer {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	prev := s.out
	s.out = w
	return prev
}

func (s *Shell) print(text string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprint(s.out, text)
}

func (s *Shell) record(line, outcome, output string) {
	if s.journal == nil {
		return
	}
	_, err := s.journal.RecordCommand(domain.CommandRecord{
		SessionID: s.session,
		At:        s.now(),
		Line:      line,
		Outcome:   outcome,
		Output:    output,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("journal command")
	}
}

// history lists the last n journaled commands, oldest first.
func (s *Shell) history(n int) (string, error) {
	if s.journal == nil {
		return "", domain.Reject(domain.ErrJournalDisabled, "Command journal is disabled...")
	}
	recs, err := s.journal.RecentCommands(n)
	if err != nil {
		return "", fmt.Errorf("read journal: %w", err)
	}
	if len(recs) == 0 {
		return "No commands yet...", nil
	}

	lines := make([]string, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		lines = append(lines, fmt.Sprintf("%s  %-8s  %s", r.At.Format("2006-01-02 15:04:05"), r.Outcome, r.Line))
	}
	return strings.Join(lines, "\n"), nil
}
