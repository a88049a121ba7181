// Package config загружает конфигурацию оркестратора.
//
// Источники (по возрастанию приоритета): значения по умолчанию, YAML-файл,
// переменные окружения с префиксом SHARDER_ (точки заменяются на _),
// флаги командной строки, привязанные через BindFlags.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shaiso/Sharder/internal/notify"
	"github.com/shaiso/Sharder/internal/stats"
)

// ErrInvalidConfig — конфигурация некорректна (фатально при старте).
var ErrInvalidConfig = errors.New("invalid configuration")

// Config — конфигурация оркестратора.
type Config struct {
	Name  string `mapstructure:"name"`
	Token string `mapstructure:"token"`
	Debug bool   `mapstructure:"debug"`

	// Shards — явное количество шардов (0 — по рекомендации gateway).
	Shards int `mapstructure:"shards"`

	// Workers — количество процессов-воркеров (default: число ядер).
	Workers int `mapstructure:"workers"`

	// GuildsPerShard — делитель для авто-расчёта шардов.
	GuildsPerShard int `mapstructure:"guilds_per_shard"`

	// ClientOptions пробрасываются каждому воркеру в команде start.
	ClientOptions map[string]any `mapstructure:"client_options"`

	Gateway struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"gateway"`

	Webhooks struct {
		Cluster notify.WebhookTarget `mapstructure:"cluster"`
		Shard   notify.WebhookTarget `mapstructure:"shard"`
	} `mapstructure:"webhooks"`

	Worker struct {
		// Command — бинарник воркера (default: текущий исполняемый файл).
		Command string   `mapstructure:"command"`
		Args    []string `mapstructure:"args"`
	} `mapstructure:"worker"`

	Launch struct {
		ReadyTimeout   time.Duration `mapstructure:"ready_timeout"`
		StepsPerSecond float64       `mapstructure:"steps_per_second"`
	} `mapstructure:"launch"`

	Supervisor struct {
		MaxRestarts   int           `mapstructure:"max_restarts"`
		RestartWindow time.Duration `mapstructure:"restart_window"`
		SpawnRetries  int           `mapstructure:"spawn_retries"`
		SpawnBackoff  time.Duration `mapstructure:"spawn_backoff"`
		StopGrace     time.Duration `mapstructure:"stop_grace"`
	} `mapstructure:"supervisor"`

	Fetch struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"fetch"`

	Stats struct {
		Enabled  bool          `mapstructure:"enabled"`
		Schedule string        `mapstructure:"schedule"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"stats"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	AMQP struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"amqp"`

	DB struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"db"`
}

// setDefaults задаёт значения по умолчанию.
func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "Sharder")
	v.SetDefault("token", "")
	v.SetDefault("gateway.url", "")
	v.SetDefault("webhooks.cluster.id", "")
	v.SetDefault("webhooks.cluster.token", "")
	v.SetDefault("webhooks.shard.id", "")
	v.SetDefault("webhooks.shard.token", "")
	v.SetDefault("worker.command", "")
	v.SetDefault("amqp.url", "")
	v.SetDefault("db.url", "")
	v.SetDefault("shards", 0)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("guilds_per_shard", 1300)
	v.SetDefault("debug", false)
	v.SetDefault("launch.ready_timeout", 2*time.Minute)
	v.SetDefault("launch.steps_per_second", 20.0)
	v.SetDefault("supervisor.max_restarts", 5)
	v.SetDefault("supervisor.restart_window", 10*time.Minute)
	v.SetDefault("supervisor.spawn_retries", 3)
	v.SetDefault("supervisor.spawn_backoff", 500*time.Millisecond)
	v.SetDefault("supervisor.stop_grace", 5*time.Second)
	v.SetDefault("fetch.timeout", 5*time.Second)
	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.schedule", "@every 10s")
	v.SetDefault("stats.timeout", 5*time.Second)
	v.SetDefault("http.addr", ":8083")
}

// New возвращает viper с дефолтами и настроенным окружением.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SHARDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// FlagKeys — соответствие флагов командной строки ключам конфигурации.
var FlagKeys = map[string]string{
	"shards":           "shards",
	"workers":          "workers",
	"guilds-per-shard": "guilds_per_shard",
	"token":            "token",
	"debug":            "debug",
	"stats":            "stats.enabled",
	"http-addr":        "http.addr",
	"amqp-url":         "amqp.url",
	"db-url":           "db.url",
}

// BindFlags привязывает известные флаги из flags к ключам конфигурации.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var errs []error
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Load читает файл (если path не пуст) и собирает Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	var problems []string

	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be >= 1, got %d", c.Workers))
	}
	if c.Shards < 0 {
		problems = append(problems, fmt.Sprintf("shards must be >= 0, got %d", c.Shards))
	}
	if c.GuildsPerShard <= 0 {
		problems = append(problems, fmt.Sprintf("guilds_per_shard must be > 0, got %d", c.GuildsPerShard))
	}
	if c.Shards == 0 && c.Token == "" {
		problems = append(problems, "token is required when shards is 0 (auto)")
	}
	if c.Supervisor.MaxRestarts < 0 {
		problems = append(problems, "supervisor.max_restarts must be >= 0")
	}
	if c.Supervisor.SpawnRetries < 1 {
		problems = append(problems, "supervisor.spawn_retries must be >= 1")
	}
	if c.Stats.Enabled {
		if err := stats.ValidateSchedule(c.Stats.Schedule); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// WebhookTargets возвращает webhooks по scope.
func (c *Config) WebhookTargets() map[notify.Scope]notify.WebhookTarget {
	return map[notify.Scope]notify.WebhookTarget{
		notify.ScopeCluster: c.Webhooks.Cluster,
		notify.ScopeShard:   c.Webhooks.Shard,
	}
}
