package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/lpsuspend/internal/clocktree"
	"github.com/roach88/lpsuspend/internal/compiler"
	"github.com/roach88/lpsuspend/internal/cpu"
	"github.com/roach88/lpsuspend/internal/engine"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/notify"
	"github.com/roach88/lpsuspend/internal/platform"
	"github.com/roach88/lpsuspend/internal/regs"
	"github.com/roach88/lpsuspend/internal/store"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

// Poll limits applied to a mapped register window when none are given, so
// that a register that never settles cannot hang the command.
const (
	defaultMappedPollLimit     = 1 << 20
	defaultMappedLockPollLimit = 1 << 16
)

// EnterOptions holds flags for the enter command.
type EnterOptions struct {
	*RootOptions
	Platform    string
	PlatformDir string
	Depth       string
	DB          string

	WakeEvents  []string // raw events, one per halt
	WakeDevices []string // replaces the simulated wake-capable devices

	Again bool // listener asks for one more sleep after the first wake
	Veto  bool // listener aborts before the tables run

	MaxAttempts   int
	PollLimit     int
	LockPollLimit int

	Mem       string // device node or image file to map
	MemBase   uint32
	MemSize   uint32
	MemOffset int64
}

// EnterResult is the outcome of one sleep transaction.
type EnterResult struct {
	TxID        string          `json:"tx_id"`
	Platform    string          `json:"platform"`
	Depth       string          `json:"depth"`
	Outcome     string          `json:"outcome"`
	RawEvent    uint32          `json:"raw_event"`
	WakeCause   uint32          `json:"wake_cause"`
	Attempts    int             `json:"attempts"`
	Writes      int             `json:"writes"`
	Transitions []ir.Transition `json:"transitions"`
}

// NewEnterCommand creates the enter command.
func NewEnterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enter",
		Short: "Run one sleep transaction",
		Long: `Run one sleep transaction on a platform.

The platform's tables run against its simulated board, or against a
mapped register window when --mem is given; the CPU halt is simulated and
wakes with the events given by --wake-event. With --db the transaction is
journaled to a SQLite database.

Examples:
  lpsuspend enter --platform stx7111 --depth standby --wake-event 0x300
  lpsuspend enter --platform stx7111 --wake-device lirc --db journal.db
  lpsuspend enter --platform devboard --platform-dir ./platforms --veto
  lpsuspend enter --platform stx7111 --mem regs.img --mem-size 0x2000000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnter(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Platform, "platform", "", "platform name (required)")
	cmd.Flags().StringVar(&opts.PlatformDir, "platform-dir", "", "CUE platform directory (default: builtin platforms)")
	cmd.Flags().StringVar(&opts.Depth, "depth", "self_refresh", "sleep depth (standby|self_refresh|mem)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "journal database path")
	cmd.Flags().StringSliceVar(&opts.WakeEvents, "wake-event", nil, "raw wake event per halt, e.g. 0x300")
	cmd.Flags().StringSliceVar(&opts.WakeDevices, "wake-device", nil, "wake-capable device names (replaces the simulated devices)")
	cmd.Flags().BoolVar(&opts.Again, "again", false, "sleep once more after the first wake")
	cmd.Flags().BoolVar(&opts.Veto, "veto", false, "veto the transaction in the prepare notification")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 0, "maximum suspend/resume executions (0 = unbounded)")
	cmd.Flags().IntVar(&opts.PollLimit, "poll-limit", 0, "maximum reads per wait instruction (0 = unbounded)")
	cmd.Flags().IntVar(&opts.LockPollLimit, "lock-poll-limit", 0, "maximum reads per PLL lock wait (0 = platform default)")
	cmd.Flags().StringVar(&opts.Mem, "mem", "", "map this device node or image file as the register window")
	cmd.Flags().Uint32Var(&opts.MemBase, "mem-base", 0xfd000000, "first register address of the mapped window")
	cmd.Flags().Uint32Var(&opts.MemSize, "mem-size", 0x2000000, "size of the mapped window in bytes")
	cmd.Flags().Int64Var(&opts.MemOffset, "mem-offset", 0, "file offset of --mem-base")
	_ = cmd.MarkFlagRequired("platform")

	return cmd
}

func runEnter(opts *EnterOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	depth, err := ir.ParseSleepDepth(opts.Depth)
	if err != nil {
		return commandError(formatter, ErrCodeBadFlag, err.Error())
	}
	events, err := parseWakeEvents(opts.WakeEvents)
	if err != nil {
		return commandError(formatter, ErrCodeBadFlag, err.Error())
	}

	p, err := FindPlatform(opts.PlatformDir, opts.Platform)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Platform %s from %s", p.Name, p.Source)

	board, err := newBoard(p, opts)
	if err != nil {
		return commandError(formatter, ErrCodeBadFlag, err.Error())
	}
	defer board.Close()

	c := cpu.NewSim(events...)
	c.SetLoopsPerMillisecond(p.Sim.LoopsPerMs)

	devices := p.Sim.Devices
	if opts.WakeDevices != nil {
		devices = make([]wakeup.Device, len(opts.WakeDevices))
		for i, name := range opts.WakeDevices {
			devices[i] = wakeup.Device{Name: name, MayWakeup: true}
		}
	}
	var treeOpts []clocktree.Option
	if board.lockPollLimit > 0 {
		treeOpts = append(treeOpts, clocktree.WithLockPollLimit(board.lockPollLimit))
	}
	desc, err := p.Descriptor(board.regs, p.NewRates(), platform.StaticDevices(devices...), treeOpts...)
	if err != nil {
		return commandError(formatter, ErrCodeBuildFailed, err.Error())
	}

	managerOpts := []engine.Option{
		engine.WithMaxAttempts(opts.MaxAttempts),
		engine.WithPollLimit(board.pollLimit),
	}
	if opts.DB != "" {
		st, err := store.Open(opts.DB)
		if err != nil {
			return commandError(formatter, ErrCodeJournal, fmt.Sprintf("open journal: %v", err))
		}
		defer st.Close()
		last, err := st.LastSeq(ctx)
		if err != nil {
			return commandError(formatter, ErrCodeJournal, fmt.Sprintf("read journal: %v", err))
		}
		managerOpts = append(managerOpts,
			engine.WithRecorder(st),
			engine.WithClock(engine.NewClockAt(last)),
		)
	}

	m := engine.NewManager(board.regs, c, managerOpts...)
	if _, err := m.Notify().Register(cliListener(opts)); err != nil {
		return commandError(formatter, ErrCodeGeneric, err.Error())
	}
	if err := m.Register(desc); err != nil {
		return commandError(formatter, ErrCodeGeneric, err.Error())
	}
	if board.sim != nil {
		board.sim.ResetLog()
	}

	_, enterErr := m.Enter(ctx, depth)
	if enterErr != nil && engine.CodeOf(enterErr) == "" {
		return WrapExitError(ExitCommandError, "enter", enterErr)
	}

	rec, ok := m.LastTransaction()
	if !ok {
		// Rejected before a transaction started: nothing was journaled.
		code := string(engine.CodeOf(enterErr))
		_ = formatter.Error(code, enterErr.Error(), nil)
		return WrapExitError(ExitFailure, code, enterErr)
	}

	result := EnterResult{
		TxID:        rec.ID,
		Platform:    rec.Platform,
		Depth:       rec.Depth,
		Outcome:     rec.Outcome,
		RawEvent:    rec.RawEvent,
		WakeCause:   rec.WakeCause,
		Attempts:    rec.Attempts,
		Transitions: rec.Transitions,
	}
	if rec.Error != "" {
		result.Outcome = rec.Error
	}
	if board.sim != nil {
		result.Writes = len(board.sim.Writes())
	}

	if err := outputEnter(formatter, result, opts.Verbose); err != nil {
		return err
	}
	if enterErr != nil {
		return WrapExitError(ExitFailure, result.Outcome, enterErr)
	}
	return nil
}

// cliListener scripts the single notify-chain listener from the flags.
func cliListener(opts *EnterOptions) notify.Listener {
	posts := 0
	return notify.Funcs{
		OnPrepare: func(ir.SleepDepth) notify.PrepareResult {
			if opts.Veto {
				return notify.Abort
			}
			return notify.Proceed
		},
		OnPost: func(_ ir.SleepDepth, cause ir.WakeCause) notify.PostResult {
			posts++
			slog.Debug("woke", "raw", fmt.Sprintf("0x%x", cause.Raw), "logical", cause.Logical, "wake", posts)
			if opts.Again && posts == 1 {
				return notify.Again
			}
			return notify.Continue
		},
	}
}

// parseWakeEvents parses raw event values in any Go integer syntax.
func parseWakeEvents(values []string) ([]uint32, error) {
	events := make([]uint32, 0, len(values))
	for _, v := range values {
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid wake event %q: %w", v, err)
		}
		events = append(events, uint32(n))
	}
	return events, nil
}

// board is the register file a transaction runs against.
type board struct {
	regs          regs.File
	sim           *regs.Sim // simulated part, nil if none
	closer        io.Closer
	pollLimit     int
	lockPollLimit int
}

func (b *board) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func newBoard(p *compiler.Platform, opts *EnterOptions) (*board, error) {
	sim := p.NewRegisters()
	b := &board{
		regs:          sim,
		sim:           sim,
		pollLimit:     opts.PollLimit,
		lockPollLimit: opts.LockPollLimit,
	}
	if opts.Mem == "" {
		return b, nil
	}

	bus, closer, err := mapRegisters(sim, regs.MapConfig{
		Path:   opts.Mem,
		Base:   opts.MemBase,
		Size:   opts.MemSize,
		Offset: opts.MemOffset,
	})
	if err != nil {
		return nil, err
	}
	b.regs = bus
	b.closer = closer

	if b.pollLimit == 0 {
		b.pollLimit = defaultMappedPollLimit
		slog.Warn("mapped registers without --poll-limit, using default", "poll_limit", b.pollLimit)
	}
	if b.lockPollLimit == 0 && p.LockPollLimit == 0 {
		b.lockPollLimit = defaultMappedLockPollLimit
		slog.Warn("mapped registers without --lock-poll-limit, using default", "lock_poll_limit", b.lockPollLimit)
	}
	return b, nil
}

// outputEnter prints the transaction result.
func outputEnter(f *OutputFormatter, result EnterResult, verbose bool) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result, TxID: result.TxID}
		if result.Outcome != engine.OutcomeOK {
			resp.Status = "error"
			resp.Error = &CLIError{Code: result.Outcome, Message: "sleep transaction failed"}
		}
		return json.NewEncoder(f.Writer).Encode(resp)
	}

	ok := result.Outcome == engine.OutcomeOK
	fmt.Fprintf(f.Writer, "%s %s %s: %s\n", f.Mark(ok), result.Platform, result.Depth, result.Outcome)
	fmt.Fprintf(f.Writer, "  tx:       %s\n", result.TxID)
	if ok {
		fmt.Fprintf(f.Writer, "  wake:     raw=0x%x logical=%d\n", result.RawEvent, result.WakeCause)
	}
	fmt.Fprintf(f.Writer, "  attempts: %d\n", result.Attempts)
	fmt.Fprintf(f.Writer, "  writes:   %d\n", result.Writes)
	if verbose {
		for _, t := range result.Transitions {
			if t.Detail != "" {
				fmt.Fprintf(f.Writer, "  [%d] %s (%s)\n", t.Seq, t.State, t.Detail)
			} else {
				fmt.Fprintf(f.Writer, "  [%d] %s\n", t.Seq, t.State)
			}
		}
	}
	return nil
}

// commandError reports a command-level error (exit code 2).
func commandError(f *OutputFormatter, code, message string) error {
	_ = f.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// loadFailure reports a platform load error (exit code 2).
func loadFailure(f *OutputFormatter, err error) error {
	if le, ok := err.(*LoadError); ok {
		return commandError(f, le.Code, le.Message)
	}
	return commandError(f, ErrCodeGeneric, err.Error())
}
