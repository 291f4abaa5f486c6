package domain

import (
	"fmt"
	"time"
)

// SignalThreshold es el score mínimo (0-100) para generar una señal de compra.
const SignalThreshold = 50.0

// Nombres de los factores que produce el scorer.
const (
	FactorLiquidity          = "liquidity"
	FactorHolderDistribution = "holder_distribution"
	FactorSecurity           = "security"
	FactorSocial             = "social"
	FactorMLPrediction       = "ml_prediction"
	FactorSentiment          = "sentiment"
)

// ScoreFactor es una componente ponderada del score total.
type ScoreFactor struct {
	Name        string
	Value       float64 // 0-100
	Weight      float64
	Description string
}

// TokenScore es el resultado del scoring de un token.
type TokenScore struct {
	TokenAddress   string
	TotalScore     float64 // 0-100
	RiskScore      float64 // 0-100, mayor = más riesgo
	MLProbability  float64
	SentimentScore float64
	Factors        []ScoreFactor
}

// Factor devuelve el factor con el nombre dado.
func (s TokenScore) Factor(name string) (ScoreFactor, bool) {
	for _, f := range s.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return ScoreFactor{}, false
}

// NeutralProbability es lo que devuelve un predictor sin información.
const NeutralProbability = 0.5

// Prediction es la probabilidad de éxito estimada para un token.
type Prediction struct {
	Probability float64 // 0-1
	Confidence  float64 // 0-1
}

// Sentiment es el sentimiento social agregado de un token.
type Sentiment struct {
	Score    float64 // -1..1
	Mentions int
}

// TradeSignal es la señal inmutable que autoriza a considerar una compra.
type TradeSignal struct {
	Token       TokenMetadata
	Score       float64
	Probability float64
	Reasons     []string
	Timestamp   time.Time
}

// GenerateSignal produce una señal si el score alcanza SignalThreshold.
// Las razones describen los factores fuertes del token.
func GenerateSignal(token TokenMetadata, score TokenScore, now time.Time) (TradeSignal, bool) {
	if score.TotalScore < SignalThreshold {
		return TradeSignal{}, false
	}

	var reasons []string
	for _, f := range score.Factors {
		switch {
		case f.Name == FactorLiquidity && f.Value >= 70:
			reasons = append(reasons, fmt.Sprintf("High liquidity: $%.0f", token.LiquidityUSD))
		case f.Name == FactorHolderDistribution && f.Value >= 70:
			reasons = append(reasons, "Well distributed holders")
		case f.Name == FactorSecurity && f.Value >= 70:
			reasons = append(reasons, "Strong security (mint revoked, etc.)")
		case f.Name == FactorSocial && f.Value >= 50:
			reasons = append(reasons, "Strong social presence")
		}
	}

	return TradeSignal{
		Token:       token,
		Score:       score.TotalScore,
		Probability: score.MLProbability,
		Reasons:     reasons,
		Timestamp:   now,
	}, true
}

// CheckMustHave aplica los mínimos de liquidez y market cap.
// Devuelve false junto con todas las razones que fallan.
func CheckMustHave(token TokenMetadata, minLiquidity, minMarketCap float64) (bool, []string) {
	var reasons []string
	if token.LiquidityUSD < minLiquidity {
		reasons = append(reasons, fmt.Sprintf("Insufficient liquidity: $%.0f < $%.0f", token.LiquidityUSD, minLiquidity))
	}
	if token.MarketCapUSD < minMarketCap {
		reasons = append(reasons, fmt.Sprintf("Insufficient market cap: $%.0f < $%.0f", token.MarketCapUSD, minMarketCap))
	}
	return len(reasons) == 0, reasons
}
