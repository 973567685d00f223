package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polyrevert/internal/domain"
	"github.com/alejandrodnm/polyrevert/internal/strategy"
)

// Config es la configuración completa del bot. Se lee una vez al arrancar.
type Config struct {
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Execution ExecutionConfig `yaml:"execution"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// StrategyConfig controla la detección de anomalías y la selección de mercados.
type StrategyConfig struct {
	Symbols             []string `yaml:"symbols"`
	CandleInterval      string   `yaml:"candle_interval"`
	LookbackPeriod      int      `yaml:"lookback_period"`
	ZScoreThreshold     float64  `yaml:"z_score_threshold"`
	ZScoreExtreme       float64  `yaml:"z_score_extreme"`
	BollingerPeriod     int      `yaml:"bollinger_period"`
	MinEdgePct          *float64 `yaml:"min_edge_pct"` // nil = default; 0 acepta cualquier edge positivo
	KellyFraction       float64  `yaml:"kelly_fraction"`
	Estimator           string   `yaml:"estimator"`
	PollIntervalSeconds float64  `yaml:"poll_interval_seconds"`
	ListingTTLSeconds   int      `yaml:"listing_ttl_seconds"`
	ListingLimit        int      `yaml:"listing_limit"`
	StatsEveryCycles    int      `yaml:"stats_every_cycles"`
}

// RiskConfig controla el tamaño de posición y los límites de capital.
type RiskConfig struct {
	Bankroll        float64  `yaml:"bankroll"`
	MinPositionUSD  float64  `yaml:"min_position_usd"`
	MaxPositionUSD  float64  `yaml:"max_position_usd"`
	TimeStopMinutes float64  `yaml:"time_stop_minutes"`
	TakeProfitPct   *float64 `yaml:"take_profit_pct"` // nil = default; 0 desactiva el take profit
	DailyLossLimit  float64  `yaml:"daily_loss_limit"`
	MaxDrawdownPct  float64  `yaml:"max_drawdown_pct"`
}

// ExecutionConfig controla el backend de ejecución.
type ExecutionConfig struct {
	DryRun        bool   `yaml:"dry_run"`
	NoticeEnabled bool   `yaml:"notice_enabled"`
	PrivateKey    string `yaml:"-"` // solo desde POLY_PRIVATE_KEY
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase    string `yaml:"clob_base"`
	GammaBase   string `yaml:"gamma_base"`
	BinanceBase string `yaml:"binance_base"`
	NoticeBase  string `yaml:"notice_base"` // backend que recibe los avisos de ejecución
	PolygonRPC  string `yaml:"polygon_rpc"`
}

// StorageConfig controla dónde se persisten los registros de señales.
type StorageConfig struct {
	DSN        string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	MaxRecords int    `yaml:"max_records"`
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"` // "" = desactivado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// Si el archivo YAML no existe se usan los defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// PollInterval devuelve el intervalo entre ciclos como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Strategy.PollIntervalSeconds * float64(time.Second))
}

// Params convierte la configuración en los parámetros inmutables de la estrategia.
func (c *Config) Params() strategy.Params {
	symbols := make([]string, len(c.Strategy.Symbols))
	copy(symbols, c.Strategy.Symbols)

	return strategy.Params{
		Symbols:         symbols,
		CandleInterval:  c.Strategy.CandleInterval,
		Lookback:        c.Strategy.LookbackPeriod,
		ZEntry:          c.Strategy.ZScoreThreshold,
		ZExtreme:        c.Strategy.ZScoreExtreme,
		BollingerPeriod: c.Strategy.BollingerPeriod,
		MinEdge:         deref(c.Strategy.MinEdgePct),
		KellyMultiplier: c.Strategy.KellyFraction,
		Estimator:       c.Strategy.Estimator,
		MinPositionUSD:  c.Risk.MinPositionUSD,
		MaxPositionUSD:  c.Risk.MaxPositionUSD,
		TimeStop:        time.Duration(c.Risk.TimeStopMinutes * float64(time.Minute)),
		TakeProfit:      deref(c.Risk.TakeProfitPct),
		DailyLossLimit:  c.Risk.DailyLossLimit,
		MaxDrawdown:     c.Risk.MaxDrawdownPct,
		PollInterval:    c.PollInterval(),
		ListingTTL:      time.Duration(c.Strategy.ListingTTLSeconds) * time.Second,
		ListingLimit:    c.Strategy.ListingLimit,
		MaxRecords:      c.Storage.MaxRecords,
		StatsEvery:      c.Strategy.StatsEveryCycles,
	}
}

// Validate comprueba la coherencia de la configuración. Los errores devueltos
// envuelven domain.ErrConfig y son fatales: el proceso no debe arrancar.
// En modo live (dryRun=false) exige además las credenciales de trading.
func (c *Config) Validate(dryRun bool) error {
	s, r := c.Strategy, c.Risk
	switch {
	case len(s.Symbols) == 0:
		return fmt.Errorf("config.Validate: no symbols configured: %w", domain.ErrConfig)
	case s.LookbackPeriod < 3:
		return fmt.Errorf("config.Validate: lookback_period %d < 3: %w", s.LookbackPeriod, domain.ErrConfig)
	case s.ZScoreExtreme < s.ZScoreThreshold:
		return fmt.Errorf("config.Validate: z_score_extreme %.2f < z_score_threshold %.2f: %w",
			s.ZScoreExtreme, s.ZScoreThreshold, domain.ErrConfig)
	case r.MaxPositionUSD < r.MinPositionUSD:
		return fmt.Errorf("config.Validate: max_position_usd %.2f < min_position_usd %.2f: %w",
			r.MaxPositionUSD, r.MinPositionUSD, domain.ErrConfig)
	case r.Bankroll <= 0:
		return fmt.Errorf("config.Validate: bankroll must be > 0: %w", domain.ErrConfig)
	case r.MaxDrawdownPct <= 0 || r.MaxDrawdownPct >= 1:
		return fmt.Errorf("config.Validate: max_drawdown_pct %.2f outside (0,1): %w", r.MaxDrawdownPct, domain.ErrConfig)
	case deref(s.MinEdgePct) < 0:
		return fmt.Errorf("config.Validate: min_edge_pct %.2f < 0: %w", deref(s.MinEdgePct), domain.ErrConfig)
	case deref(r.TakeProfitPct) < 0:
		return fmt.Errorf("config.Validate: take_profit_pct %.2f < 0: %w", deref(r.TakeProfitPct), domain.ErrConfig)
	}

	if !dryRun {
		if c.Execution.PrivateKey == "" {
			return fmt.Errorf("config.Validate: POLY_PRIVATE_KEY required for live trading: %w", domain.ErrConfig)
		}
		if c.API.PolygonRPC == "" {
			return fmt.Errorf("config.Validate: polygon_rpc required for live trading: %w", domain.ErrConfig)
		}
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLY_PRIVATE_KEY"); v != "" {
		cfg.Execution.PrivateKey = v
	}
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.API.PolygonRPC = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.API.NoticeBase = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	d := strategy.DefaultParams()

	if len(cfg.Strategy.Symbols) == 0 {
		cfg.Strategy.Symbols = d.Symbols
	}
	if cfg.Strategy.CandleInterval == "" {
		cfg.Strategy.CandleInterval = d.CandleInterval
	}
	if cfg.Strategy.LookbackPeriod <= 0 {
		cfg.Strategy.LookbackPeriod = d.Lookback
	}
	if cfg.Strategy.ZScoreThreshold <= 0 {
		cfg.Strategy.ZScoreThreshold = d.ZEntry
	}
	if cfg.Strategy.ZScoreExtreme <= 0 {
		cfg.Strategy.ZScoreExtreme = d.ZExtreme
	}
	if cfg.Strategy.BollingerPeriod <= 0 {
		cfg.Strategy.BollingerPeriod = d.BollingerPeriod
	}
	if cfg.Strategy.MinEdgePct == nil {
		cfg.Strategy.MinEdgePct = &d.MinEdge
	}
	if cfg.Strategy.KellyFraction <= 0 {
		cfg.Strategy.KellyFraction = d.KellyMultiplier
	}
	if cfg.Strategy.Estimator == "" {
		cfg.Strategy.Estimator = d.Estimator
	}
	if cfg.Strategy.PollIntervalSeconds <= 0 {
		cfg.Strategy.PollIntervalSeconds = d.PollInterval.Seconds()
	}
	if cfg.Strategy.ListingTTLSeconds <= 0 {
		cfg.Strategy.ListingTTLSeconds = int(d.ListingTTL.Seconds())
	}
	if cfg.Strategy.ListingLimit <= 0 {
		cfg.Strategy.ListingLimit = d.ListingLimit
	}
	if cfg.Strategy.StatsEveryCycles <= 0 {
		cfg.Strategy.StatsEveryCycles = d.StatsEvery
	}
	if cfg.Risk.Bankroll <= 0 {
		cfg.Risk.Bankroll = 1000
	}
	if cfg.Risk.MinPositionUSD <= 0 {
		cfg.Risk.MinPositionUSD = d.MinPositionUSD
	}
	if cfg.Risk.MaxPositionUSD <= 0 {
		cfg.Risk.MaxPositionUSD = d.MaxPositionUSD
	}
	if cfg.Risk.TimeStopMinutes <= 0 {
		cfg.Risk.TimeStopMinutes = d.TimeStop.Minutes()
	}
	if cfg.Risk.TakeProfitPct == nil {
		cfg.Risk.TakeProfitPct = &d.TakeProfit
	}
	if cfg.Risk.DailyLossLimit <= 0 {
		cfg.Risk.DailyLossLimit = d.DailyLossLimit
	}
	if cfg.Risk.MaxDrawdownPct <= 0 {
		cfg.Risk.MaxDrawdownPct = d.MaxDrawdown
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.BinanceBase == "" {
		cfg.API.BinanceBase = "https://api.binance.com"
	}
	if cfg.API.NoticeBase == "" {
		cfg.API.NoticeBase = "http://127.0.0.1:3001"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyrevert.db"
	}
	if cfg.Storage.MaxRecords <= 0 {
		cfg.Storage.MaxRecords = d.MaxRecords
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
