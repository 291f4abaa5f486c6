package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// defaultProbabilityThreshold deja pasar la predicción neutral.
const defaultProbabilityThreshold = domain.NeutralProbability

// Config es la configuración completa del sniper.
type Config struct {
	Wallet    WalletConfig    `yaml:"wallet"`
	Solana    SolanaConfig    `yaml:"solana"`
	Trading   TradingConfig   `yaml:"trading"`
	Execution ExecutionConfig `yaml:"execution"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	ML        MLConfig        `yaml:"ml"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Bot       BotConfig       `yaml:"bot"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// WalletConfig identifica la wallet. La clave privada nunca pasa por aquí.
type WalletConfig struct {
	PublicKey string `yaml:"public_key"` // SNIPER_WALLET en .env
}

// RPCEndpoint es un nodo JSON-RPC. Mayor weight = mayor prioridad.
type RPCEndpoint struct {
	URL    string `yaml:"url"`
	Weight int    `yaml:"weight"`
}

// SolanaConfig agrupa los endpoints de red.
type SolanaConfig struct {
	RPC  []RPCEndpoint `yaml:"rpc"`
	Jito JitoConfig    `yaml:"jito"`
}

// JitoConfig es el relay de bundles y su rango de tip en SOL.
type JitoConfig struct {
	URL    string  `yaml:"url"`
	TipMin float64 `yaml:"tip_min"`
	TipMax float64 `yaml:"tip_max"`
}

// TradingConfig son los límites de riesgo y sizing.
type TradingConfig struct {
	InitialCapital    float64                 `yaml:"initial_capital"`
	MaxPositionSize   float64                 `yaml:"max_position_size"` // fracción del cash, <= 0.5
	MaxPositions      int                     `yaml:"max_positions"`
	StopLoss          float64                 `yaml:"stop_loss"`      // hard stop, <= 0.5
	SoftStopLoss      float64                 `yaml:"soft_stop_loss"` // < stop_loss
	TakeProfitTiers   []domain.TakeProfitTier `yaml:"take_profit_tiers"`
	MinLiquidity      float64                 `yaml:"min_liquidity"`
	MinMarketCap      float64                 `yaml:"min_market_cap"`
	SizingMode        string                  `yaml:"sizing_mode"` // fixed | kelly
	ExpectedOdds      float64                 `yaml:"expected_odds"`
	BaseAssetPriceUSD float64                 `yaml:"base_asset_price_usd"` // fallback si no hay precio de SOL
}

// ExecutionConfig controla cómo se envían los swaps.
type ExecutionConfig struct {
	UseBundle             bool    `yaml:"use_bundle"`
	SimulateBundleAck     bool    `yaml:"simulate_bundle_ack"`
	MaxSlippage           float64 `yaml:"max_slippage"`
	JupiterBase           string  `yaml:"jupiter_base"`
	QuoteTimeoutSeconds   int     `yaml:"quote_timeout_seconds"`
	ConfirmTimeoutSeconds int     `yaml:"confirm_timeout_seconds"`
}

// DiscoveryConfig es el stream de tokens nuevos y la fuente de metadata.
type DiscoveryConfig struct {
	PumpFunURL    string `yaml:"pumpfun_url"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Concurrency   int    `yaml:"concurrency"`
	BirdeyeBase   string `yaml:"birdeye_base"`
	BirdeyeAPIKey string `yaml:"birdeye_api_key"` // BIRDEYE_API_KEY en .env
}

// MLConfig controla el predictor. Enabled es el modelo entrenado (requiere
// model_path); Heuristic activa el predictor de reglas, que no lee archivos.
// Con ambos apagados el predictor devuelve siempre domain.NeutralProbability.
type MLConfig struct {
	Enabled              bool     `yaml:"enabled"`
	ModelPath            string   `yaml:"model_path"`
	Heuristic            bool     `yaml:"heuristic"`
	ProbabilityThreshold *float64 `yaml:"probability_threshold"` // nil → default; 0 es válido
}

// SentimentConfig fija el sentimiento neutral que recibe el scorer.
type SentimentConfig struct {
	FixedScore float64 `yaml:"fixed_score"`
}

// MonitorConfig controla el loop de posiciones.
type MonitorConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	HistorySize     int `yaml:"history_size"`
}

// BotConfig controla el orquestador.
type BotConfig struct {
	Workers               int  `yaml:"workers"`
	QueueSize             int  `yaml:"queue_size"`
	ScoringTimeoutSeconds int  `yaml:"scoring_timeout_seconds"`
	StatusIntervalSeconds int  `yaml:"status_interval_seconds"`
	StatusTable           bool `yaml:"status_table"`
}

// StorageConfig controla dónde se persiste el journal.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// Una configuración inválida devuelve un error que envuelve domain.ErrConfigInvalid.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate falla si algún límite excede sus topes.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Solana.RPC) == 0 {
		bad("at least one RPC endpoint is required")
	}
	for i, ep := range c.Solana.RPC {
		if strings.TrimSpace(ep.URL) == "" {
			bad("solana.rpc[%d]: empty url", i)
		}
	}

	t := c.Trading
	if t.MaxPositionSize <= 0 || t.MaxPositionSize > 0.5 {
		bad("trading.max_position_size %.2f outside (0, 0.5]", t.MaxPositionSize)
	}
	if t.StopLoss <= 0 || t.StopLoss > 0.5 {
		bad("trading.stop_loss %.2f outside (0, 0.5]", t.StopLoss)
	}
	if t.SoftStopLoss <= 0 || t.SoftStopLoss >= t.StopLoss {
		bad("trading.soft_stop_loss %.2f must be in (0, stop_loss)", t.SoftStopLoss)
	}
	if t.MaxPositions <= 0 {
		bad("trading.max_positions must be positive")
	}
	if t.InitialCapital <= 0 {
		bad("trading.initial_capital must be positive")
	}
	for i, tier := range t.TakeProfitTiers {
		if tier.Threshold <= 0 {
			bad("trading.take_profit_tiers[%d]: threshold must be positive", i)
		}
		if tier.ExitPercent <= 0 || tier.ExitPercent > 1 {
			bad("trading.take_profit_tiers[%d]: exit_percent %.2f outside (0, 1]", i, tier.ExitPercent)
		}
	}
	if t.SizingMode != "fixed" && t.SizingMode != "kelly" {
		bad("trading.sizing_mode %q: want fixed or kelly", t.SizingMode)
	}

	if c.Execution.MaxSlippage <= 0 || c.Execution.MaxSlippage >= 1 {
		bad("execution.max_slippage %.2f outside (0, 1)", c.Execution.MaxSlippage)
	}
	if j := c.Solana.Jito; j.TipMin < 0 || j.TipMin > j.TipMax {
		bad("solana.jito tip range [%.4f, %.4f] invalid", j.TipMin, j.TipMax)
	}
	if c.Execution.UseBundle && c.Solana.Jito.TipMax <= 0 {
		bad("execution.use_bundle requires a positive solana.jito.tip_max")
	}

	if c.ML.Enabled && c.ML.ModelPath == "" {
		bad("ml.model_path is required when ml is enabled")
	}
	if p := c.ProbabilityThreshold(); p < 0 || p > 1 {
		bad("ml.probability_threshold %.2f outside [0, 1]", p)
	} else if !c.PredictorEnabled() && p > domain.NeutralProbability {
		bad("ml.probability_threshold %.2f rejects every token: the disabled predictor returns %.2f", p, domain.NeutralProbability)
	}
	if s := c.Sentiment.FixedScore; s < -1 || s > 1 {
		bad("sentiment.fixed_score %.2f outside [-1, 1]", s)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfigInvalid, errors.Join(errs...))
}

// MonitorInterval devuelve el intervalo del monitor como time.Duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

// QuoteTimeout devuelve el timeout de cotización como time.Duration.
func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.Execution.QuoteTimeoutSeconds) * time.Second
}

// ConfirmTimeout devuelve el timeout de confirmación como time.Duration.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Execution.ConfirmTimeoutSeconds) * time.Second
}

// ScoringTimeout devuelve el timeout de cada colaborador de scoring.
func (c *Config) ScoringTimeout() time.Duration {
	return time.Duration(c.Bot.ScoringTimeoutSeconds) * time.Second
}

// StatusInterval devuelve el intervalo del log de estado.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Bot.StatusIntervalSeconds) * time.Second
}

// PredictorEnabled indica si el predictor calcula features o devuelve la
// predicción neutral.
func (c *Config) PredictorEnabled() bool {
	return c.ML.Enabled || c.ML.Heuristic
}

// ProbabilityThreshold es la probabilidad mínima para operar.
func (c *Config) ProbabilityThreshold() float64 {
	if c.ML.ProbabilityThreshold == nil {
		return defaultProbabilityThreshold
	}
	return *c.ML.ProbabilityThreshold
}

// RPCURLs devuelve las URLs ordenadas por prioridad.
func (c *Config) RPCURLs() []string {
	urls := make([]string, 0, len(c.Solana.RPC))
	for _, ep := range c.Solana.RPC {
		urls = append(urls, ep.URL)
	}
	return urls
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SNIPER_WALLET"); v != "" {
		cfg.Wallet.PublicKey = v
	}
	if v := os.Getenv("BIRDEYE_API_KEY"); v != "" {
		cfg.Discovery.BirdeyeAPIKey = v
	}
	// SNIPER_RPC_URLS reemplaza la lista entera; el orden es la prioridad.
	if v := os.Getenv("SNIPER_RPC_URLS"); v != "" {
		var eps []RPCEndpoint
		parts := strings.Split(v, ",")
		for i, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				eps = append(eps, RPCEndpoint{URL: p, Weight: len(parts) - i})
			}
		}
		cfg.Solana.RPC = eps
	}
	if v := os.Getenv("SNIPER_INITIAL_CAPITAL"); v != "" {
		capital, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SNIPER_INITIAL_CAPITAL %q: %w", v, domain.ErrConfigInvalid)
		}
		cfg.Trading.InitialCapital = capital
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	t := &cfg.Trading
	if t.InitialCapital == 0 {
		t.InitialCapital = 1000
	}
	if t.MaxPositionSize == 0 {
		t.MaxPositionSize = 0.1
	}
	if t.MaxPositions == 0 {
		t.MaxPositions = 5
	}
	if t.StopLoss == 0 {
		t.StopLoss = 0.15
	}
	if t.SoftStopLoss == 0 {
		t.SoftStopLoss = 0.08
	}
	if len(t.TakeProfitTiers) == 0 {
		t.TakeProfitTiers = []domain.TakeProfitTier{
			{Threshold: 0.5, ExitPercent: 0.3},
			{Threshold: 1.0, ExitPercent: 0.3},
			{Threshold: 3.0, ExitPercent: 0.4},
		}
	}
	sort.SliceStable(t.TakeProfitTiers, func(i, j int) bool {
		return t.TakeProfitTiers[i].Threshold < t.TakeProfitTiers[j].Threshold
	})
	if t.MinLiquidity == 0 {
		t.MinLiquidity = 5000
	}
	if t.MinMarketCap == 0 {
		t.MinMarketCap = 10000
	}
	if t.SizingMode == "" {
		t.SizingMode = "fixed"
	}
	if t.ExpectedOdds <= 1 {
		t.ExpectedOdds = 2
	}
	if t.BaseAssetPriceUSD <= 0 {
		t.BaseAssetPriceUSD = 150
	}

	// Mayor weight primero; empates conservan el orden del YAML.
	sort.SliceStable(cfg.Solana.RPC, func(i, j int) bool {
		return cfg.Solana.RPC[i].Weight > cfg.Solana.RPC[j].Weight
	})
	if cfg.Solana.Jito.URL == "" {
		cfg.Solana.Jito.URL = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"
	}
	if cfg.Solana.Jito.TipMin == 0 && cfg.Solana.Jito.TipMax == 0 {
		cfg.Solana.Jito.TipMin = 0.0001
		cfg.Solana.Jito.TipMax = 0.001
	}

	e := &cfg.Execution
	if e.MaxSlippage == 0 {
		e.MaxSlippage = 0.15
	}
	if e.JupiterBase == "" {
		e.JupiterBase = "https://quote-api.jup.ag/v6"
	}
	if e.QuoteTimeoutSeconds <= 0 {
		e.QuoteTimeoutSeconds = 5
	}
	if e.ConfirmTimeoutSeconds <= 0 {
		e.ConfirmTimeoutSeconds = 30
	}

	d := &cfg.Discovery
	if d.PumpFunURL == "" {
		d.PumpFunURL = "wss://pumpportal.fun/api/data"
	}
	if d.MaxReconnects <= 0 {
		d.MaxReconnects = 10
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}
	if d.BirdeyeBase == "" {
		d.BirdeyeBase = "https://public-api.birdeye.so"
	}

	if cfg.ML.ProbabilityThreshold == nil {
		p := defaultProbabilityThreshold
		cfg.ML.ProbabilityThreshold = &p
	}

	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = 5
	}
	if cfg.Monitor.HistorySize <= 0 {
		cfg.Monitor.HistorySize = 120
	}

	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Bot.QueueSize <= 0 {
		cfg.Bot.QueueSize = 256
	}
	if cfg.Bot.ScoringTimeoutSeconds <= 0 {
		cfg.Bot.ScoringTimeoutSeconds = 2
	}
	if cfg.Bot.StatusIntervalSeconds <= 0 {
		cfg.Bot.StatusIntervalSeconds = 30
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "sniper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
