package domain

import "time"

// NativeMint es el mint del activo base (SOL envuelto) usado como lado
// de entrada en compras y de salida en ventas.
const NativeMint = "So11111111111111111111111111111111111111112"

// NativeDecimals es la precisión del activo base (lamports).
const NativeDecimals = 9

// Token identifica un mint SPL.
type Token struct {
	Address  string
	Symbol   string
	Name     string
	Decimals int
}

// SocialMetrics son las métricas sociales opcionales de un token.
type SocialMetrics struct {
	TwitterFollowers int
	TelegramMembers  int
	TweetVelocity    float64 // menciones por hora
}

// TokenMetadata es el snapshot de mercado de un token en el momento de su descubrimiento.
type TokenMetadata struct {
	Token

	PriceUSD        float64
	LiquidityUSD    float64
	MarketCapUSD    float64
	Volume24hUSD    float64
	Holders         int
	Top10HolderPct  float64 // 0-100
	MintRevoked     bool
	FreezeRevoked   bool
	LiquidityBurned bool
	CreatedAt       time.Time
	Social          *SocialMetrics // nil si no hay datos sociales
}

// AgeMinutes devuelve la edad del token en minutos, 0 si no se conoce la fecha de creación.
func (t TokenMetadata) AgeMinutes(now time.Time) float64 {
	if t.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(t.CreatedAt).Minutes()
}

// DiscoverySource es el origen de un evento de descubrimiento.
type DiscoverySource string

const (
	SourcePumpFun DiscoverySource = "pumpfun"
	SourceDEX     DiscoverySource = "dex"
	SourceSocial  DiscoverySource = "social"
)

// DiscoveryEvent anuncia un token recién descubierto.
type DiscoveryEvent struct {
	Token     TokenMetadata
	Source    DiscoverySource
	Timestamp time.Time
}
