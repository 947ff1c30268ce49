package strategy

// FeeModel describes what it costs to get in and out of a position.
type FeeModel struct {
	SwapFeeBps     float64
	ExitFeeBps     float64
	PriorityFeeSOL float64
	BaseFeeSOL     float64
	TipSOL         float64
}

// DefaultFeeModel returns the production fee structure.
func DefaultFeeModel() FeeModel {
	return FeeModel{
		SwapFeeBps:     50,
		ExitFeeBps:     300,
		PriorityFeeSOL: 0.0001,
		BaseFeeSOL:     0.000005,
		TipSOL:         0.00025,
	}
}

// FixedExitFees is the per-transaction cost of a sell, independent of size.
func (f FeeModel) FixedExitFees() float64 {
	return f.PriorityFeeSOL + f.BaseFeeSOL + f.TipSOL
}

// ExitRate is the proportional cost of a sell.
func (f FeeModel) ExitRate() float64 {
	return f.ExitFeeBps / 10_000
}

// BreakEvenTrigger returns the profit fraction at which selling sellPct
// percent of a position of sizeSOL recovers the full stake after fees, plus
// buffer.
func (f FeeModel) BreakEvenTrigger(sizeSOL, sellPct, buffer float64) float64 {
	if sizeSOL <= 0 || sellPct <= 0 {
		return 0
	}
	net := (sellPct / 100) * (1 - f.ExitRate())
	if net <= 0 {
		return 0
	}
	return (sizeSOL+f.FixedExitFees())/net/sizeSOL - 1 + buffer
}
