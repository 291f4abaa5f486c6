package ports

import (
	"context"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Scorer combina los datos del token con la predicción y el sentimiento
// en un score 0-100.
type Scorer interface {
	Score(ctx context.Context, token domain.TokenMetadata, prediction domain.Prediction, sentiment domain.Sentiment) (domain.TokenScore, error)
}

// Predictor estima la probabilidad de éxito de un token.
type Predictor interface {
	Predict(ctx context.Context, token domain.TokenMetadata) (domain.Prediction, error)
}

// SentimentAnalyzer mide el sentimiento social de un token en [-1, 1].
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, token domain.TokenMetadata) (domain.Sentiment, error)
}
