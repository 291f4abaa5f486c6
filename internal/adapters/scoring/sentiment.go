package scoring

import (
	"context"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// FixedSentiment devuelve siempre el mismo sentimiento. Es el analizador por
// defecto mientras no haya ingesta social.
type FixedSentiment struct {
	value domain.Sentiment
}

// NewFixedSentiment crea el analizador; score se recorta a [-1,1].
func NewFixedSentiment(score float64) *FixedSentiment {
	return &FixedSentiment{value: domain.Sentiment{Score: clamp(score, -1, 1)}}
}

// Analyze implementa ports.SentimentAnalyzer.
func (s *FixedSentiment) Analyze(context.Context, domain.TokenMetadata) (domain.Sentiment, error) {
	return s.value, nil
}
