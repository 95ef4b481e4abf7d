package execution

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Entrypoint is the calling convention every program implements: a program
// id, an ordered account sequence and an opaque instruction buffer in, a
// success/failure result out.
type Entrypoint func(ic *InvokeContext, programID solana.PublicKey, accounts []*AccountInfo, data []byte) error

type Invocation struct {
	ProgramID solana.PublicKey
	Accounts  []*AccountInfo
	Data      []byte
	// ComputeBudget overrides the runtime default when non-zero.
	ComputeBudget uint64
}

type Result struct {
	// Logs holds the program's own log records in emission order.
	Logs []string
	// Transcript is the full log as the host reports it, including the
	// invoke/consumed/success framing lines.
	Transcript   []string
	ComputeUnits uint64
	Err          error
}

func (r *Result) Success() bool { return r.Err == nil }

// InvokeContext carries the host facilities available to a program during
// one call.
type InvokeContext struct {
	ctx       context.Context
	log       *zap.Logger
	programID solana.PublicKey
	meter     *Meter

	logs       []string
	transcript []string
	// set when a host facility aborts the call; overrides the program result
	abort error
}

func (ic *InvokeContext) Context() context.Context { return ic.ctx }
func (ic *InvokeContext) Meter() *Meter            { return ic.meter }

// Msg records one program log line.
func (ic *InvokeContext) Msg(format string, args ...any) {
	ic.record(LogCost, fmt.Sprintf(format, args...))
}

// LogU64 records five values as a single hex formatted log line.
func (ic *InvokeContext) LogU64(a, b, c, d, e uint64) {
	ic.record(Log64Cost, fmt.Sprintf("%#x, %#x, %#x, %#x, %#x", a, b, c, d, e))
}

func (ic *InvokeContext) record(cost uint64, line string) {
	if ic.charge(cost) != nil {
		return
	}
	ic.logs = append(ic.logs, line)
	ic.transcript = append(ic.transcript, "Program log: "+line)
	ic.log.Debug("program log", zap.Stringer("program", ic.programID), zap.String("msg", line))
}

type Option func(*Runtime)

func WithComputeBudget(units uint64) Option {
	return func(r *Runtime) { r.budget = units }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// Runtime is the host that loads programs by id and invokes them.
type Runtime struct {
	log     *zap.Logger
	budget  uint64
	metrics *Metrics

	mu       sync.RWMutex
	programs map[solana.PublicKey]Entrypoint
}

func New(log *zap.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		log:      log,
		budget:   DefaultComputeBudget,
		programs: make(map[solana.PublicKey]Entrypoint),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runtime) Register(id solana.PublicKey, fn Entrypoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = fn
	r.log.Info("program registered", zap.Stringer("program", id))
}

// Programs lists registered program ids in a stable order.
func (r *Runtime) Programs() []solana.PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]solana.PublicKey, 0, len(r.programs))
	for id := range r.programs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Invoke runs a program to completion. Program failures are reported in
// Result.Err, never as a panic.
func (r *Runtime) Invoke(ctx context.Context, inv Invocation) *Result {
	budget := inv.ComputeBudget
	if budget == 0 {
		budget = r.budget
	}
	ic := &InvokeContext{
		ctx:       ctx,
		log:       r.log,
		programID: inv.ProgramID,
		meter:     NewMeter(budget),
	}
	id := inv.ProgramID.String()
	ic.transcript = append(ic.transcript, fmt.Sprintf("Program %s invoke [1]", id))

	err := r.call(ic, inv)
	if ic.abort != nil {
		err = ic.abort
	}

	ic.transcript = append(ic.transcript,
		fmt.Sprintf("Program %s consumed %d of %d compute units", id, ic.meter.Used(), ic.meter.Budget()))
	if err != nil {
		ic.transcript = append(ic.transcript, fmt.Sprintf("Program %s failed: %s", id, err))
		r.log.Debug("invocation failed", zap.String("program", id), zap.Error(err))
	} else {
		ic.transcript = append(ic.transcript, fmt.Sprintf("Program %s success", id))
	}

	res := &Result{
		Logs:         ic.logs,
		Transcript:   ic.transcript,
		ComputeUnits: ic.meter.Used(),
		Err:          err,
	}
	r.metrics.observe(id, res)
	return res
}

func (r *Runtime) call(ic *InvokeContext, inv Invocation) (err error) {
	if err := ic.ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	fn, ok := r.programs[inv.ProgramID]
	r.mu.RUnlock()
	if !ok {
		return ErrUnsupportedProgramID
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("program panicked: %v", p)
		}
	}()
	return fn(ic, inv.ProgramID, inv.Accounts, inv.Data)
}

// FormatTranscript joins transcript lines for display.
func FormatTranscript(lines []string) string {
	return strings.Join(lines, "\n")
}
