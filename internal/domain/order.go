package domain

import (
	"encoding/json"
	"math"
	"time"
)

// OrderSide is the direction of a swap relative to the native asset.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// QuoteRequest asks the routing service for an exact-in swap.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // input amount in base units
	SlippageBps int
}

// Quote is a priced route returned by the routing service.
// Amounts are in base units of their respective mints.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	PriceImpactPct float64
	SlippageBps    int
	Raw            json.RawMessage // echoed back when requesting the swap transaction
}

// TokenAmount is a wallet holding in base units, with the decimals reported
// by the token account itself.
type TokenAmount struct {
	Raw      uint64
	Decimals int
}

// UI returns the amount in display units.
func (a TokenAmount) UI() float64 {
	if a.Raw == 0 {
		return 0
	}
	return float64(a.Raw) / math.Pow10(a.Decimals)
}

// SwapTransaction is a serialized transaction ready for submission.
type SwapTransaction struct {
	Payload              string // base64 wire format
	LastValidBlockHeight uint64
	TipLamports          uint64 // relay tip embedded in the transaction, 0 on the plain path
}

// TxStatus is the network view of a submitted transaction or bundle.
type TxStatus struct {
	Found     bool
	Confirmed bool   // reached confirmed or finalized commitment
	Err       string // non-empty when the transaction failed on chain
}

// Terminal reports whether polling can stop.
func (s TxStatus) Terminal() bool {
	return s.Err != "" || s.Confirmed
}

// OrderResult is the typed outcome of a buy or sell. Failures never surface
// as errors from the execution engine; they land here instead.
type OrderResult struct {
	Success     bool
	Side        OrderSide
	TxHandle    string  // signature or bundle id
	FilledPrice float64 // native asset per token
	InAmount    float64 // UI units of the input mint
	OutAmount   float64 // UI units of the output mint
	Simulated   bool    // relay acknowledgment was simulated
	Endpoint    string
	Error       string
	Err         error
	At          time.Time
}
