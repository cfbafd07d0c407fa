package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Signals   SignalsConfig   `mapstructure:"signals"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Tick is the due-deliverable scan cadence (cron spec, e.g. "@every 1m").
	Tick string `mapstructure:"tick"`
	// SignalTick is the coarser per-user signal pipeline cadence.
	SignalTick    string `mapstructure:"signal_tick"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	ClaimBatch    int    `mapstructure:"claim_batch"`
}

type SignalsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MinConfidence is the floor below which reasoner actions are discarded.
	MinConfidence float64 `mapstructure:"min_confidence"`
	// MinContentItems short-circuits reasoning when the snapshot is too thin.
	MinContentItems int `mapstructure:"min_content_items"`
	// Lookahead bounds the overlap check against existing deliverables.
	Lookahead time.Duration `mapstructure:"lookahead"`
	// FetchWindow bounds how far back the extractor reads per platform.
	FetchWindow  time.Duration `mapstructure:"fetch_window"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// ActivityDays is how many days of activity feed the reasoner sees.
	ActivityDays int `mapstructure:"activity_days"`
	// DedupWindows maps a signal class to its re-proposal suppression window.
	DedupWindows map[string]time.Duration `mapstructure:"dedup_windows"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKeyEnv   string        `mapstructure:"api_key_env"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float32       `mapstructure:"temperature"`
}

type ExecutionConfig struct {
	// RetryBackoff is waited between a failed generation call and its single retry.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// Windows bound gathered context per deliverable rhythm.
	DailyWindow    time.Duration `mapstructure:"daily_window"`
	WeeklyWindow   time.Duration `mapstructure:"weekly_window"`
	OnDemandWindow time.Duration `mapstructure:"on_demand_window"`
	MaxItems       int           `mapstructure:"max_items"`
}

type DeliveryConfig struct {
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type FeedbackConfig struct {
	// RecentObservations is the N most recent preference notes fed back into
	// generation.
	RecentObservations int `mapstructure:"recent_observations"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("YN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick", "@every 1m")
	v.SetDefault("scheduler.signal_tick", "@every 1h")
	v.SetDefault("scheduler.max_concurrent", 8)
	v.SetDefault("scheduler.claim_batch", 50)

	v.SetDefault("signals.enabled", true)
	v.SetDefault("signals.min_confidence", 0.6)
	v.SetDefault("signals.min_content_items", 3)
	v.SetDefault("signals.lookahead", "72h")
	v.SetDefault("signals.fetch_window", "48h")
	v.SetDefault("signals.fetch_timeout", "30s")
	v.SetDefault("signals.activity_days", 7)
	v.SetDefault("signals.dedup_windows", map[string]string{
		"meeting_prep":    "24h",
		"recurring_theme": "168h",
	})

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-1.5-pro")
	v.SetDefault("llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.temperature", 0.1)

	v.SetDefault("execution.retry_backoff", "5s")
	v.SetDefault("execution.fetch_timeout", "30s")
	v.SetDefault("execution.daily_window", "24h")
	v.SetDefault("execution.weekly_window", "168h")
	v.SetDefault("execution.on_demand_window", "48h")
	v.SetDefault("execution.max_items", 200)

	v.SetDefault("delivery.publish_timeout", "30s")
	v.SetDefault("feedback.recent_observations", 10)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DedupWindow returns the suppression window for a signal class, falling back
// to the meeting_prep default when the class is unknown.
func (c SignalsConfig) DedupWindow(class string) time.Duration {
	if w, ok := c.DedupWindows[class]; ok && w > 0 {
		return w
	}
	return 24 * time.Hour
}
