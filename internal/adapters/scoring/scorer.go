package scoring

// scorer.go: scoring por reglas.
//
// Seis factores 0-100 ponderados:
//   liquidez 0.25, distribución de holders 0.20, seguridad 0.20,
//   social 0.15, predicción 0.10, sentimiento 0.10.
// El risk score va aparte y no entra en el total.

import (
	"context"
	"math"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

const (
	weightLiquidity = 0.25
	weightHolders   = 0.20
	weightSecurity  = 0.20
	weightSocial    = 0.15
	weightML        = 0.10
	weightSentiment = 0.10

	// "buena" liquidez = 10× el mínimo
	goodLiquidityMultiple = 10
)

// RuleScorer puntúa tokens con reglas fijas.
type RuleScorer struct {
	minLiquidity float64
}

// NewRuleScorer crea un RuleScorer. minLiquidity es el mismo mínimo del
// filtro must-have.
func NewRuleScorer(minLiquidity float64) *RuleScorer {
	return &RuleScorer{minLiquidity: minLiquidity}
}

// Score calcula el score ponderado y el risk score de token.
func (s *RuleScorer) Score(_ context.Context, token domain.TokenMetadata, p domain.Prediction, sent domain.Sentiment) (domain.TokenScore, error) {
	factors := []domain.ScoreFactor{
		{
			Name:        domain.FactorLiquidity,
			Value:       s.liquidityScore(token.LiquidityUSD),
			Weight:      weightLiquidity,
			Description: "Liquidity score based on USD value",
		},
		{
			Name:        domain.FactorHolderDistribution,
			Value:       holderScore(token.Top10HolderPct),
			Weight:      weightHolders,
			Description: "Score based on holder concentration",
		},
		{
			Name:        domain.FactorSecurity,
			Value:       securityScore(token),
			Weight:      weightSecurity,
			Description: "Security factors (mint revoked, etc.)",
		},
		{
			Name:        domain.FactorSocial,
			Value:       socialScore(token.Social),
			Weight:      weightSocial,
			Description: "Social media presence and engagement",
		},
		{
			Name:        domain.FactorMLPrediction,
			Value:       clamp(p.Probability, 0, 1) * 100,
			Weight:      weightML,
			Description: "Success probability",
		},
		{
			Name:        domain.FactorSentiment,
			Value:       (clamp(sent.Score, -1, 1) + 1) * 50,
			Weight:      weightSentiment,
			Description: "Social sentiment score",
		},
	}

	var total float64
	for _, f := range factors {
		total += f.Value * f.Weight
	}

	return domain.TokenScore{
		TokenAddress:   token.Address,
		TotalScore:     total,
		RiskScore:      riskScore(token, factors),
		MLProbability:  p.Probability,
		SentimentScore: sent.Score,
		Factors:        factors,
	}, nil
}

// liquidityScore es lineal entre el mínimo (0) y 10× el mínimo (100).
func (s *RuleScorer) liquidityScore(liquidity float64) float64 {
	good := s.minLiquidity * goodLiquidityMultiple
	switch {
	case liquidity >= good:
		return 100
	case liquidity >= s.minLiquidity && good > s.minLiquidity:
		return (liquidity - s.minLiquidity) / (good - s.minLiquidity) * 100
	default:
		return 0
	}
}

func holderScore(top10Pct float64) float64 {
	switch {
	case top10Pct <= 30:
		return 100
	case top10Pct <= 50:
		return 80
	case top10Pct <= 70:
		return 50
	case top10Pct <= 90:
		return 20
	default:
		return 0
	}
}

func securityScore(t domain.TokenMetadata) float64 {
	score := 50.0
	if t.MintRevoked {
		score += 25
	}
	if t.FreezeRevoked {
		score += 15
	}
	if t.LiquidityBurned {
		score += 10
	}
	return math.Min(score, 100)
}

func socialScore(s *domain.SocialMetrics) float64 {
	score := 50.0
	if s == nil {
		return score
	}
	if s.TwitterFollowers > 1000 {
		score += 25
	}
	if s.TweetVelocity > 5 {
		score += 15
	}
	if s.TelegramMembers > 500 {
		score += 10
	}
	return math.Min(score, 100)
}

// riskScore: mayor = más riesgo.
func riskScore(t domain.TokenMetadata, factors []domain.ScoreFactor) float64 {
	risk := 50.0
	if t.Top10HolderPct > 80 {
		risk += 30
	}
	if !t.MintRevoked {
		risk += 20
	}
	for _, f := range factors {
		if f.Name == domain.FactorLiquidity && f.Value < 30 {
			risk += 15
		}
		if f.Name == domain.FactorSocial && f.Value < 30 {
			risk += 10
		}
	}
	return math.Min(risk, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
