package domain

import (
	"sort"
	"time"
)

// LifecycleState is the stage of a position in the escalation ladder.
type LifecycleState string

const (
	StateScout      LifecycleState = "SCOUT"
	StateConfirm    LifecycleState = "CONFIRM"
	StateConviction LifecycleState = "CONVICTION"
	StateMoonbag    LifecycleState = "MOONBAG"
	StateExit       LifecycleState = "EXIT"
)

// Terminal reports whether no transition may leave the state.
func (s LifecycleState) Terminal() bool {
	return s == StateExit
}

// Rank orders the escalation states; EXIT has no rank.
func (s LifecycleState) Rank() int {
	switch s {
	case StateScout:
		return 1
	case StateConfirm:
		return 2
	case StateConviction:
		return 3
	case StateMoonbag:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the known states.
func (s LifecycleState) Valid() bool {
	return s == StateExit || s.Rank() > 0
}

// RiskLevel is the hysteresis-driven risk classification of a position.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RunnerState is a step function of unrealized profit.
type RunnerState string

const (
	RunnerNormal    RunnerState = "NORMAL"
	RunnerPre       RunnerState = "PRE_RUNNER"
	RunnerRunner    RunnerState = "RUNNER"
	RunnerParabolic RunnerState = "PARABOLIC"
)

// NarrativePhase is the coarse flow classification of a position.
type NarrativePhase string

const (
	NarrativeInflow       NarrativePhase = "INFLOW"
	NarrativeDistribution NarrativePhase = "DISTRIBUTION"
	NarrativeNeutral      NarrativePhase = "NEUTRAL"
)

// SelectionSignals is derived from one TokenInfo and never outlives a tick.
type SelectionSignals struct {
	TxRateAccel       float64
	WalletInfluxAccel float64
	HigherHigh        bool
	CurveSlopeAccel   float64
	SellAbsorption    bool
	Score             int
	AntiFakeOK        bool
}

// Passes reports whether the signals clear threshold and the anti-fake gate.
func (s SelectionSignals) Passes(threshold int) bool {
	return s.AntiFakeOK && s.Score >= threshold
}

// Transition reason codes.
const (
	ReasonTimeout            = "timeout"
	ReasonStopLoss           = "stop-loss"
	ReasonSelectionConfirmed = "selection-confirmed"
	ReasonConvictionWindows  = "conviction-windows"
	ReasonConvictionProfit   = "conviction-profit"
	ReasonMoonbag            = "moonbag"
)

// StateTransition is a requested move produced by the state machine.
type StateTransition struct {
	From   LifecycleState
	To     LifecycleState
	Reason string
}

// Escalation reports whether the transition asks for more size.
func (t StateTransition) Escalation() bool {
	return t.To != StateExit && t.To.Rank() > t.From.Rank()
}

// Position is the unit of ownership. Exactly one exists per mint and only the
// control loop mutates it. Sizes are in SOL, prices in SOL per token.
type Position struct {
	Mint   string         `json:"mint"`
	Symbol string         `json:"symbol"`
	Phase  Phase          `json:"phase"`
	State  LifecycleState `json:"state"`

	OpenedAt      time.Time `json:"opened_at"`
	StateSince    time.Time `json:"state_since"`
	ScoutDeadline time.Time `json:"scout_deadline"`
	LastUpdate    time.Time `json:"last_update"`

	EntryPrice float64 `json:"entry_price"`
	LastPrice  float64 `json:"last_price"`
	PeakPrice  float64 `json:"peak_price"`

	SizeSOL        float64 `json:"size_sol"`
	InitialSizeSOL float64 `json:"initial_size_sol"`
	TokenAmountRaw uint64  `json:"token_amount_raw"`

	SelectionScore        int `json:"selection_score"`
	SelectionConsecutive  int `json:"selection_consecutive"`
	ConvictionConsecutive int `json:"conviction_consecutive"`

	Risk      RiskLevel      `json:"risk"`
	Runner    RunnerState    `json:"runner"`
	Narrative NarrativePhase `json:"narrative"`
	EAS       float64        `json:"eas"`

	Milestones     map[string]bool `json:"milestones,omitempty"`
	RealizedPnLSOL float64         `json:"realized_pnl_sol"`

	BreakEven     bool      `json:"break_even"`
	GraceBreaches int       `json:"grace_breaches"`
	LastBreachAt  time.Time `json:"last_breach_at"`
	BounceReentry int       `json:"bounce_reentry"`

	// PendingExit, when set, forces an exit with this reason on the next tick.
	PendingExit string `json:"pending_exit,omitempty"`
}

// NewPosition builds a SCOUT position from a confirmed entry fill.
func NewPosition(mint, symbol string, phase Phase, fill Fill, now time.Time, scoutTimeout time.Duration) *Position {
	return &Position{
		Mint:           mint,
		Symbol:         symbol,
		Phase:          phase,
		State:          StateScout,
		OpenedAt:       now,
		StateSince:     now,
		ScoutDeadline:  now.Add(scoutTimeout),
		LastUpdate:     now,
		EntryPrice:     fill.FilledPrice,
		LastPrice:      fill.FilledPrice,
		PeakPrice:      fill.FilledPrice,
		SizeSOL:        fill.FilledSizeSOL,
		InitialSizeSOL: fill.FilledSizeSOL,
		TokenAmountRaw: fill.TokenAmountRaw,
		Risk:           RiskLow,
		Runner:         RunnerNormal,
		Narrative:      NarrativeNeutral,
		EAS:            1.0,
		Milestones:     map[string]bool{},
	}
}

// PnLPct returns the unrealized return at price as a fraction of entry.
func (p *Position) PnLPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return price/p.EntryPrice - 1
}

// Observe records a fresh price and ratchets the peak.
func (p *Position) Observe(price float64, now time.Time) {
	if price <= 0 {
		return
	}
	p.LastPrice = price
	if price > p.PeakPrice {
		p.PeakPrice = price
	}
	p.LastUpdate = now
}

// HasMilestone reports whether the named partial exit already fired.
func (p *Position) HasMilestone(name string) bool {
	return p.Milestones[name]
}

// MarkMilestone records that the named partial exit fired.
func (p *Position) MarkMilestone(name string) {
	if p.Milestones == nil {
		p.Milestones = map[string]bool{}
	}
	p.Milestones[name] = true
}

// MilestoneNames returns the fired milestones in sorted order.
func (p *Position) MilestoneNames() []string {
	out := make([]string, 0, len(p.Milestones))
	for k, v := range p.Milestones {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p *Position) Clone() Position {
	c := *p
	if p.Milestones != nil {
		c.Milestones = make(map[string]bool, len(p.Milestones))
		for k, v := range p.Milestones {
			c.Milestones[k] = v
		}
	}
	return c
}
