package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/lpsuspend/internal/clocktree"
	"github.com/roach88/lpsuspend/internal/cpu"
	"github.com/roach88/lpsuspend/internal/executor"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/notify"
	"github.com/roach88/lpsuspend/internal/platform"
	"github.com/roach88/lpsuspend/internal/regs"
)

// WakeCause is the wake event that ended a sleep.
type WakeCause = ir.WakeCause

// Recorder persists finished transactions. internal/store implements it.
type Recorder interface {
	RecordTransaction(ctx context.Context, rec ir.TransactionRecord) error
}

// Manager owns the registered platform and runs sleep transactions on it.
//
// Enter, Register and Unregister are serialized: at most one transaction is
// in flight, and the platform cannot change underneath it. Listeners must
// not call back into the Manager.
type Manager struct {
	mu sync.Mutex

	desc     *platform.Descriptor
	regs     regs.File
	cpu      cpu.CPU
	exec     *executor.Executor
	chain    *notify.Chain
	clock    Sequencer
	ids      IDGenerator
	recorder Recorder

	maxAttempts int
	pollLimit   int

	last *ir.TransactionRecord
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxAttempts bounds the number of suspend/resume executions per
// transaction. Default 0: listeners may retry without limit.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		m.maxAttempts = n
	}
}

// WithPollLimit bounds every WaitUntil in the sleep program. Default 0:
// a register that never settles hangs the transaction, as on real hardware.
func WithPollLimit(n int) Option {
	return func(m *Manager) {
		m.pollLimit = n
	}
}

// WithRecorder journals every transaction after it reaches Done.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithIDGenerator replaces the UUIDv7 transaction IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// WithClock replaces the logical clock, e.g. to continue a journal.
func WithClock(c Sequencer) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithNotifyChain shares a notify chain with other subsystems.
func WithNotifyChain(c *notify.Chain) Option {
	return func(m *Manager) {
		m.chain = c
	}
}

// NewManager creates a Manager driving the registers r and the CPU c.
func NewManager(r regs.File, c cpu.CPU, opts ...Option) *Manager {
	m := &Manager{
		regs:  r,
		cpu:   c,
		chain: &notify.Chain{},
		clock: NewClock(),
		ids:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.exec = executor.New(r, c, executor.WithPollLimit(m.pollLimit))
	return m
}

// Notify returns the chain of listeners told about every transaction.
func (m *Manager) Notify() *notify.Chain {
	return m.chain
}

// Clock returns the logical clock stamping transitions.
func (m *Manager) Clock() Sequencer {
	return m.clock
}

// Register makes desc the active platform. It fails if desc is nil, if
// desc supports no depth at all, or if a platform is already registered;
// on failure the active platform is unchanged.
func (m *Manager) Register(desc *platform.Descriptor) error {
	if desc == nil {
		return &RegistrationError{Code: ErrCodeNilDescriptor, Message: "descriptor is nil"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.desc != nil {
		return &RegistrationError{
			Code:     ErrCodeAlreadyRegistered,
			Message:  "a platform is already registered",
			Platform: m.desc.Name,
		}
	}

	depths := supportedDepths(desc)
	if len(depths) == 0 {
		return &RegistrationError{
			Code:     ErrCodeEmptyDescriptor,
			Message:  "descriptor supports no sleep depth",
			Platform: desc.Name,
		}
	}

	m.desc = desc
	slog.Info("suspend platform registered",
		"platform", desc.Name,
		"depths", depthNames(depths),
		"flags", desc.Flags.Names(),
		"chunks", desc.Chunks(ir.SelfRefresh),
	)
	return nil
}

// Unregister removes the active platform.
func (m *Manager) Unregister() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.desc == nil {
		return &RegistrationError{Code: ErrCodeNotRegistered, Message: "no platform registered"}
	}
	slog.Info("suspend platform unregistered", "platform", m.desc.Name)
	m.desc = nil
	return nil
}

// Active returns the registered platform, or nil.
func (m *Manager) Active() *platform.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desc
}

// IsSupported reports whether the active platform can enter depth.
func (m *Manager) IsSupported(depth ir.SleepDepth) bool {
	return m.Active().Supports(depth)
}

// Capabilities lists the depths the active platform supports.
func (m *Manager) Capabilities() []ir.SleepDepth {
	return supportedDepths(m.Active())
}

// LastTransaction returns the journal record of the most recent transaction.
func (m *Manager) LastTransaction() (ir.TransactionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return ir.TransactionRecord{}, false
	}
	return *m.last, true
}

// Enter puts the system to sleep at depth and returns once it has woken.
//
// The transaction runs Begin, PreEnter and the prepare notification once,
// then executes the sleep program until every listener accepts the wake
// (a listener answering Again causes one more full suspend/resume), and
// finally PostEnter once. If PreEnter ran, PostEnter runs on every path,
// so the clock tree is restored whatever the outcome.
//
// Errors are *SuspendError. Enter never returns while the hardware is still
// in the low-power state.
func (m *Manager) Enter(ctx context.Context, depth ir.SleepDepth) (WakeCause, error) {
	if err := ctx.Err(); err != nil {
		return WakeCause{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	desc := m.desc
	if desc == nil {
		return WakeCause{}, &SuspendError{Code: ErrCodeNoPlatform, Message: "no platform registered", Depth: depth.String()}
	}
	if !desc.Supports(depth) {
		return WakeCause{}, &SuspendError{
			Code:    ErrCodeNotSupported,
			Message: fmt.Sprintf("platform %s cannot enter %s", desc.Name, depth),
			Depth:   depth.String(),
		}
	}
	if m.cpu.InInterrupt() {
		return WakeCause{}, &SuspendError{
			Code:    ErrCodeInterruptContext,
			Message: "sleep requested from interrupt context",
			Depth:   depth.String(),
			Err:     executor.ErrInterruptContext,
		}
	}

	tx := newTxn(m.ids.Generate(), desc.Name, depth, m.clock)
	program := desc.Program(depth)
	if hash, err := ir.ProgramHash(program); err == nil {
		tx.rec.ProgramHash = hash
	} else {
		slog.Warn("program hash failed", "tx", tx.id, "error", err)
	}

	slog.Info("sleep transaction starting",
		"tx", tx.id,
		"platform", desc.Name,
		"depth", depth.String(),
		"instructions", program.Len(),
	)

	cause, err := m.run(tx, desc, program)
	tx.finish(cause, err)
	rec := tx.rec
	m.last = &rec

	if err != nil {
		slog.Error("sleep transaction failed", "tx", tx.id, "error", err)
	} else {
		slog.Info("sleep transaction done",
			"tx", tx.id,
			"raw_event", fmt.Sprintf("0x%x", cause.Raw),
			"wake_cause", cause.Logical,
			"attempts", rec.Attempts,
		)
	}

	if m.recorder != nil {
		if jerr := m.recorder.RecordTransaction(ctx, rec); jerr != nil {
			slog.Error("journal write failed", "tx", tx.id, "error", jerr)
		}
	}
	return cause, err
}

func (m *Manager) run(tx *txn, desc *platform.Descriptor, program *ir.Program) (WakeCause, error) {
	hooks := desc.HooksOrDefault()
	depth := tx.depth

	tx.enter(StateBegin, "")
	wake, err := hooks.Begin(depth)
	if err != nil {
		return WakeCause{}, tx.fail(ErrCodeBeginFailed, "platform begin failed", err)
	}

	tx.enter(StatePreEnter, "wake="+wake.String())
	snap, err := hooks.PreEnter(depth, wake)
	if err != nil {
		perr := m.postEnter(tx, hooks, nil)
		if clocktree.IsAllocError(err) {
			return WakeCause{}, tx.fail(ErrCodeAllocFailed, "pre-enter could not save the clock tree", errors.Join(err, perr))
		}
		return WakeCause{}, tx.fail(ErrCodePreEnterFailed, "platform pre-enter failed", errors.Join(err, perr))
	}

	tx.enter(StateNotifyPrepare, "")
	if m.chain.Prepare(depth) == notify.Abort {
		slog.Info("sleep vetoed by listener", "tx", tx.id)
		perr := m.postEnter(tx, hooks, snap)
		return WakeCause{}, tx.fail(ErrCodeVetoed, "a listener vetoed the transition", perr)
	}

	sleep := desc.Flags.Sleeps(depth)
	timeUnit := m.cpu.LoopsPerMillisecond()
	budget := NewAttemptBudget(m.maxAttempts)

	var cause WakeCause
	for {
		if err := budget.Check(tx.id); err != nil {
			perr := m.postEnter(tx, hooks, snap)
			return cause, tx.fail(ErrCodeAttemptsExceeded, "listeners kept asking for another attempt", errors.Join(err, perr))
		}
		tx.rec.Attempts = budget.Current()

		cause, err = m.execute(tx, hooks, program, timeUnit, sleep, budget.Current())
		if err != nil {
			code := ErrCodePollLimit
			if errors.Is(err, executor.ErrInterruptContext) {
				code = ErrCodeInterruptContext
			}
			perr := m.postEnter(tx, hooks, snap)
			return cause, tx.fail(code, "sleep program failed", errors.Join(err, perr))
		}

		tx.enter(StateNotifyPostEnter, wakeDetail(cause))
		if m.chain.Post(depth, cause) != notify.Again {
			break
		}
		slog.Debug("listener asked for another attempt", "tx", tx.id, "attempt", budget.Current())
	}

	if err := m.postEnter(tx, hooks, snap); err != nil {
		code := ErrCodePostEnterFailed
		if clocktree.IsHardwareTimeoutError(err) {
			code = ErrCodeHardwareTimeout
		}
		return cause, tx.fail(code, "post-enter failed", err)
	}
	return cause, nil
}

// execute runs one suspend/halt/resume cycle with interrupts disabled and
// returns the wake event captured when the halt returned.
func (m *Manager) execute(tx *txn, hooks platform.Hooks, p *ir.Program, timeUnit uint32, sleep bool, attempt int) (WakeCause, error) {
	xt, err := m.exec.Begin()
	if err != nil {
		return WakeCause{}, err
	}
	defer xt.End()

	tx.enter(StateExecuteSuspendLeg, fmt.Sprintf("attempt=%d", attempt))
	st, err := xt.Suspend(p, timeUnit, sleep)
	// The wake event register is only meaningful after a halt.
	var raw uint32
	if st.Halts > 0 {
		raw = m.cpu.WakeEvent()
	}

	tx.enter(StateExecuteResumeLeg, fmt.Sprintf("halts=%d", st.Halts))
	_, rerr := xt.Resume(p, timeUnit, sleep)
	if err == nil {
		err = rerr
	}
	if err != nil {
		return WakeCause{Raw: raw}, err
	}
	if st.Halts == 0 {
		return WakeCause{}, nil
	}
	return WakeCause{Raw: raw, Logical: hooks.TranslateWakeEvent(raw)}, nil
}

func (m *Manager) postEnter(tx *txn, hooks platform.Hooks, snap *clocktree.Snapshot) error {
	detail := "snapshot=none"
	if snap != nil {
		detail = fmt.Sprintf("snapshot=%d", len(snap.Entries()))
	}
	tx.enter(StatePostEnter, detail)
	return hooks.PostEnter(tx.depth, snap)
}

func supportedDepths(desc *platform.Descriptor) []ir.SleepDepth {
	var out []ir.SleepDepth
	for _, d := range ir.Depths {
		if desc.Supports(d) {
			out = append(out, d)
		}
	}
	return out
}

func depthNames(depths []ir.SleepDepth) []string {
	names := make([]string, len(depths))
	for i, d := range depths {
		names[i] = d.String()
	}
	return names
}
