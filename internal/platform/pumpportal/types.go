// Package pumpportal is a client for the PumpPortal real-time trade feed,
// which reports bonding-curve reserves for pre-migration tokens.
package pumpportal

// Command is the JSON payload sent to subscribe or unsubscribe token trades.
type Command struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

const (
	methodSubscribe   = "subscribeTokenTrade"
	methodUnsubscribe = "unsubscribeTokenTrade"
)

// TradeMessage is one trade on a bonding curve.
type TradeMessage struct {
	Signature             string  `json:"signature"`
	Mint                  string  `json:"mint"`
	TraderPublicKey       string  `json:"traderPublicKey"`
	TxType                string  `json:"txType"`
	TokenAmount           float64 `json:"tokenAmount"`
	SolAmount             float64 `json:"solAmount"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	MarketCapSol          float64 `json:"marketCapSol"`
	Pool                  string  `json:"pool"`
}

// Price returns the curve price in SOL per token, or 0 when the reserves are
// missing.
func (t TradeMessage) Price() float64 {
	if t.VTokensInBondingCurve <= 0 || t.VSolInBondingCurve <= 0 {
		return 0
	}
	return t.VSolInBondingCurve / t.VTokensInBondingCurve
}
