package scoring

import (
	"context"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Pesos de las features. Suman 1 para que la probabilidad quede en [0,1]
// sin recortar cuando todas las features están normalizadas.
var featureWeights = map[string]float64{
	"liquidity_ratio":      0.20,
	"holder_concentration": 0.15,
	"buy_sell_ratio":       0.15,
	"volume_acceleration":  0.15,
	"tweet_velocity":       0.10,
	"sentiment":            0.10,
	"influencer_mentions":  0.05,
	"community_growth":     0.05,
	"mint_revoked":         0.03,
	"liquidity_burned":     0.02,
}

// defaultPrediction se usa con el predictor deshabilitado.
var defaultPrediction = domain.Prediction{Probability: domain.NeutralProbability, Confidence: 0.3}

// HeuristicPredictor estima la probabilidad de éxito con una combinación
// lineal de features derivadas del snapshot del token.
type HeuristicPredictor struct {
	enabled bool
}

// NewHeuristicPredictor crea el predictor. Deshabilitado siempre devuelve
// {0.5, 0.3}.
func NewHeuristicPredictor(enabled bool) *HeuristicPredictor {
	return &HeuristicPredictor{enabled: enabled}
}

// Predict implementa ports.Predictor.
func (p *HeuristicPredictor) Predict(_ context.Context, token domain.TokenMetadata) (domain.Prediction, error) {
	if !p.enabled {
		return defaultPrediction, nil
	}

	features := extractFeatures(token)
	var prob float64
	for name, w := range featureWeights {
		prob += features[name] * w
	}

	return domain.Prediction{
		Probability: clamp(prob, 0, 1),
		Confidence:  confidence(features),
	}, nil
}

// extractFeatures normaliza todo a [0,1]. Las features de flujo de órdenes
// no se conocen en el descubrimiento y toman su valor neutro.
func extractFeatures(t domain.TokenMetadata) map[string]float64 {
	var liqRatio float64
	if t.MarketCapUSD > 0 {
		liqRatio = clamp(t.LiquidityUSD/t.MarketCapUSD*10, 0, 1)
	}
	f := map[string]float64{
		"liquidity_ratio":      liqRatio,
		"holder_concentration": 1 - clamp(t.Top10HolderPct, 0, 100)/100,
		"buy_sell_ratio":       0.5, // 1:1 sobre un máximo de 2
		"volume_acceleration":  0,
		"tweet_velocity":       0,
		"sentiment":            0.5,
		"influencer_mentions":  0,
		"community_growth":     0,
	}
	if t.Social != nil {
		f["tweet_velocity"] = clamp(t.Social.TweetVelocity/20, 0, 1)
		f["community_growth"] = clamp(float64(t.Social.TelegramMembers)/10000, 0, 1)
	}
	if t.MintRevoked {
		f["mint_revoked"] = 1
	}
	if t.LiquidityBurned {
		f["liquidity_burned"] = 1
	}
	return f
}

// confidence es la fracción de features con información real.
func confidence(f map[string]float64) float64 {
	var known int
	for name, v := range f {
		neutral := 0.0
		if name == "buy_sell_ratio" || name == "sentiment" {
			neutral = 0.5
		}
		if v != neutral {
			known++
		}
	}
	return float64(known) / float64(len(featureWeights))
}
