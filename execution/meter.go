package execution

// Compute unit costs charged by host facilities.
const (
	DefaultComputeBudget uint64 = 200_000

	LogCost              uint64 = 100
	Log64Cost            uint64 = 100
	Sha256BaseCost       uint64 = 85
	Sha256ByteCost       uint64 = 1
	Secp256k1RecoverCost uint64 = 25_000
)

// Meter tracks compute units spent by one invocation.
type Meter struct {
	budget uint64
	used   uint64
}

func NewMeter(budget uint64) *Meter {
	if budget == 0 {
		budget = DefaultComputeBudget
	}
	return &Meter{budget: budget}
}

// Consume charges units. Once the budget is exhausted the meter is pinned at
// the budget and every further call fails.
func (m *Meter) Consume(units uint64) error {
	if units > m.budget-m.used {
		m.used = m.budget
		return ErrComputationalBudgetExceeded
	}
	m.used += units
	return nil
}

func (m *Meter) Used() uint64      { return m.used }
func (m *Meter) Budget() uint64    { return m.budget }
func (m *Meter) Remaining() uint64 { return m.budget - m.used }
