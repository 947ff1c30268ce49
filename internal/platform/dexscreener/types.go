// Package dexscreener is a client for the DexScreener public API. It serves
// per-tick market snapshots and SOL-denominated prices.
package dexscreener

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// APIToken is a token reference inside a pair.
type APIToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// APITxnCount is the buy/sell count over one window.
type APITxnCount struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

// APIPair is one liquidity pair as returned by /latest/dex/tokens.
type APIPair struct {
	ChainID     string                 `json:"chainId"`
	DexID       string                 `json:"dexId"`
	PairAddress string                 `json:"pairAddress"`
	BaseToken   APIToken               `json:"baseToken"`
	QuoteToken  APIToken               `json:"quoteToken"`
	PriceNative string                 `json:"priceNative"`
	PriceUSD    string                 `json:"priceUsd"`
	Txns        map[string]APITxnCount `json:"txns"`
	Volume      map[string]float64     `json:"volume"`
	PriceChange map[string]float64     `json:"priceChange"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

// pairsResponse is the envelope of /latest/dex/tokens.
type pairsResponse struct {
	Pairs []APIPair `json:"pairs"`
}

// NativePrice returns priceNative parsed, or 0.
func (p *APIPair) NativePrice() float64 {
	return parseFloat(p.PriceNative)
}

// USDPrice returns priceUsd parsed, or 0.
func (p *APIPair) USDPrice() float64 {
	return parseFloat(p.PriceUSD)
}

// ToDomainTokenInfo maps the pair onto the fixed market snapshot. Fields
// DexScreener does not report stay at their zero "unknown" value.
func (p *APIPair) ToDomainTokenInfo(solMint string, now time.Time) domain.TokenInfo {
	m5 := p.Txns["m5"]
	h1 := p.Txns["h1"]
	info := domain.TokenInfo{
		Mint:         p.BaseToken.Address,
		Symbol:       p.BaseToken.Symbol,
		LiquidityUSD: p.Liquidity.USD,
		VolumeUSD:    p.Volume["h24"],
		PriceUSD:     p.USDPrice(),
		Phase:        domain.ParsePhase(p.DexID),
		Market: domain.MarketSignals{
			Volume5mUSD:   p.Volume["m5"],
			Volume1hUSD:   p.Volume["h1"],
			Txns5m:        m5.Buys + m5.Sells,
			Txns1h:        h1.Buys + h1.Sells,
			Buys5m:        m5.Buys,
			Sells5m:       m5.Sells,
			PriceChange5m: p.PriceChange["m5"] / 100,
		},
	}
	if p.QuoteToken.Address == solMint {
		info.Price = p.NativePrice()
	}
	if p.PairCreatedAt > 0 {
		info.Age = now.Sub(time.UnixMilli(p.PairCreatedAt))
	}
	return info
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
