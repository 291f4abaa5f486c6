package sniper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Outcome is how the pipeline disposed of a discovery event.
type Outcome string

const (
	OutcomeOpened          Outcome = "opened"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeMustHave        Outcome = "must_have"
	OutcomeLowProbability  Outcome = "low_probability"
	OutcomeNoSignal        Outcome = "no_signal"
	OutcomeUnavailable     Outcome = "collaborator_unavailable"
	OutcomeCircuitBreaker  Outcome = "circuit_breaker"
	OutcomeDenied          Outcome = "admission_denied"
	OutcomeTooSmall        Outcome = "too_small"
	OutcomeExecutionFailed Outcome = "execution_failed"
)

// HandleEvent runs one discovery event through must-have, probability,
// signal and risk filters and buys on success. Every rejection drops the
// event with a log line; nothing is retried.
func (b *Bot) HandleEvent(ctx context.Context, ev domain.DiscoveryEvent) Outcome {
	outcome := b.handle(ctx, ev)
	b.statsMu.Lock()
	b.outcomes[outcome]++
	b.statsMu.Unlock()
	return outcome
}

func (b *Bot) handle(ctx context.Context, ev domain.DiscoveryEvent) Outcome {
	token := ev.Token
	log := slog.With("token", token.Symbol, "mint", token.Address, "source", ev.Source)

	if b.deps.Risk.HasPosition(token.Address) {
		log.Debug("sniper: already holding token")
		return OutcomeDuplicate
	}

	if ok, reasons := domain.CheckMustHave(token, b.cfg.MinLiquidity, b.cfg.MinMarketCap); !ok {
		log.Info("sniper: failed must-have", "reasons", strings.Join(reasons, "; "))
		return OutcomeMustHave
	}

	prediction, err := b.predict(ctx, token)
	if err != nil {
		log.Warn("sniper: predictor unavailable, skipping", "err", err)
		return OutcomeUnavailable
	}
	if prediction.Probability < b.cfg.ProbabilityThreshold {
		log.Info("sniper: below probability threshold",
			"probability", fmt.Sprintf("%.1f%%", prediction.Probability*100),
			"threshold", fmt.Sprintf("%.1f%%", b.cfg.ProbabilityThreshold*100),
		)
		return OutcomeLowProbability
	}

	sentiment, err := b.sentiment(ctx, token)
	if err != nil {
		log.Warn("sniper: sentiment unavailable, skipping", "err", err)
		return OutcomeUnavailable
	}

	score, err := b.score(ctx, token, prediction, sentiment)
	if err != nil {
		log.Warn("sniper: scorer unavailable, skipping", "err", err)
		return OutcomeUnavailable
	}

	signal, ok := domain.GenerateSignal(token, score, b.now())
	if !ok {
		log.Info("sniper: no trade signal",
			"score", fmt.Sprintf("%.1f", score.TotalScore),
			"risk", fmt.Sprintf("%.1f", score.RiskScore),
		)
		return OutcomeNoSignal
	}
	log.Info("sniper: trade signal",
		"score", fmt.Sprintf("%.1f", signal.Score),
		"probability", fmt.Sprintf("%.1f%%", signal.Probability*100),
		"reasons", strings.Join(signal.Reasons, "; "),
	)

	return b.admitAndBuy(ctx, signal, log)
}

// admitAndBuy is the risk gate and the buy. The token address is reserved for
// the whole call so concurrent events for the same mint cannot double-buy.
func (b *Bot) admitAndBuy(ctx context.Context, signal domain.TradeSignal, log *slog.Logger) Outcome {
	token := signal.Token

	if breaker := b.deps.Risk.CheckCircuitBreaker(); breaker.Triggered {
		log.Warn("sniper: circuit breaker tripped, not opening", "reason", breaker.Reason)
		return OutcomeCircuitBreaker
	}

	if outcome, ok := b.reserve(token.Address); !ok {
		log.Info("sniper: reservation refused", "outcome", outcome)
		return outcome
	}
	defer b.release(token.Address)

	if adm := b.deps.Risk.CanOpenPosition(); !adm.Allowed {
		log.Info("sniper: risk manager blocked", "reason", adm.Reason)
		return OutcomeDenied
	}

	sizeUSD := b.positionSizeUSD(signal)
	if sizeUSD < b.deps.Risk.MinPositionUSD() {
		log.Info("sniper: position below minimum", "size", fmt.Sprintf("$%.2f", sizeUSD))
		return OutcomeTooSmall
	}

	basePrice := b.baseAssetPrice(ctx)
	amount := sizeUSD / basePrice
	log.Info("sniper: opening position",
		"amount", fmt.Sprintf("%.4f SOL", amount),
		"size", fmt.Sprintf("$%.2f", sizeUSD),
	)

	res := b.deps.Executor.Buy(ctx, token.Token, amount, b.cfg.MaxSlippage)
	if !res.Success {
		log.Error("sniper: buy failed", "err", res.Error, "endpoint", res.Endpoint)
		b.notify(ctx, domain.LifecycleEvent{
			Kind:     domain.EventTradeFailed,
			Token:    token.Token,
			Side:     domain.SideBuy,
			Price:    token.PriceUSD,
			ValueUSD: sizeUSD,
			TxHandle: res.TxHandle,
			Reason:   "buy",
			Error:    res.Error,
			At:       b.now(),
		})
		return OutcomeExecutionFailed
	}

	entry := token.PriceUSD
	if entry <= 0 && res.FilledPrice > 0 {
		entry = res.FilledPrice * basePrice
	}
	qty := res.OutAmount
	if qty <= 0 && entry > 0 {
		qty = sizeUSD / entry
	}

	pos := domain.NewPosition(token.Token, entry, qty, sizeUSD, b.deps.Risk.Config().TakeProfitTiers, b.now())
	pos.EntryTx = res.TxHandle
	pos.StopPrice = b.deps.Risk.DynamicStopLoss(entry, defaultEntryVolatility)

	if err := b.deps.Risk.OpenPosition(pos); err != nil {
		// Unreachable while the reservation holds; the buy already landed.
		log.Error("sniper: position not recorded", "err", err, "tx", res.TxHandle)
		if errors.Is(err, domain.ErrPositionExists) {
			return OutcomeDuplicate
		}
		return OutcomeExecutionFailed
	}

	log.Info("sniper: position opened",
		"entry", fmt.Sprintf("$%.8f", entry),
		"quantity", fmt.Sprintf("%.2f", qty),
		"tx", res.TxHandle,
		"simulated", res.Simulated,
	)
	b.notify(ctx, domain.LifecycleEvent{
		Kind:      domain.EventPositionOpened,
		Token:     token.Token,
		Side:      domain.SideBuy,
		Price:     entry,
		ValueUSD:  sizeUSD,
		StopPrice: pos.StopPrice,
		TxHandle:  res.TxHandle,
		Simulated: res.Simulated,
		Reason:    strings.Join(signal.Reasons, "; "),
		At:        b.now(),
	})
	return OutcomeOpened
}

// positionSizeUSD is cash × maxPositionSize, optionally capped by Kelly.
func (b *Bot) positionSizeUSD(signal domain.TradeSignal) float64 {
	pf := b.deps.Risk.Portfolio()
	size := pf.CashUSD * b.deps.Risk.Config().MaxPositionSize
	if b.cfg.SizingMode == SizingKelly {
		size = math.Min(size, b.deps.Risk.SizeUSD(signal.Probability, b.cfg.ExpectedOdds, defaultEntryVolatility))
	}
	return size
}

// baseAssetPrice prefers the live native price over the configured fallback.
func (b *Bot) baseAssetPrice(ctx context.Context) float64 {
	if b.deps.Prices == nil {
		return b.cfg.BaseAssetPriceUSD
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ScoringTimeout)
	defer cancel()
	price, err := b.deps.Prices.Price(ctx, domain.NativeMint)
	if err != nil || price <= 0 {
		return b.cfg.BaseAssetPriceUSD
	}
	return price
}

// reserve claims address for an in-flight buy. It also counts in-flight buys
// against MaxPositions so parallel workers cannot overshoot it.
func (b *Bot) reserve(address string) (Outcome, bool) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	if _, busy := b.pending[address]; busy || b.deps.Risk.HasPosition(address) {
		return OutcomeDuplicate, false
	}
	open := len(b.deps.Risk.OpenPositions())
	if open+len(b.pending) >= b.deps.Risk.Config().MaxPositions {
		return OutcomeDenied, false
	}
	b.pending[address] = struct{}{}
	return "", true
}

func (b *Bot) release(address string) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	delete(b.pending, address)
}

func (b *Bot) pendingCount() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

func (b *Bot) predict(ctx context.Context, token domain.TokenMetadata) (domain.Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ScoringTimeout)
	defer cancel()
	return b.deps.Predictor.Predict(ctx, token)
}

func (b *Bot) sentiment(ctx context.Context, token domain.TokenMetadata) (domain.Sentiment, error) {
	if b.deps.Sentiment == nil {
		return domain.Sentiment{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ScoringTimeout)
	defer cancel()
	return b.deps.Sentiment.Analyze(ctx, token)
}

func (b *Bot) score(ctx context.Context, token domain.TokenMetadata, p domain.Prediction, s domain.Sentiment) (domain.TokenScore, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ScoringTimeout)
	defer cancel()
	return b.deps.Scorer.Score(ctx, token, p, s)
}
