// Package config загружает настройки Dagon из dagon.yaml и переменных
// окружения DAGON_*. Переменные окружения имеют приоритет над файлом,
// флаги командной строки передаются через Viper.BindPFlag.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "DAGON"

// Config — настройки оркестратора и монитора.
type Config struct {
	// ScratchDir — корень рабочих директорий задач.
	ScratchDir string `mapstructure:"scratch_dir"`

	// MaxParallel — лимит одновременно выполняемых задач; 0 — без лимита.
	MaxParallel int `mapstructure:"max_parallel"`

	// TaskTimeout — таймаут одной задачи; 0 — без таймаута.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Checkpoint struct {
		Dir   string `mapstructure:"dir"`
		DBURL string `mapstructure:"db_url"`
	} `mapstructure:"checkpoint"`

	Reporter struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
		Retries uint64        `mapstructure:"retries"`
	} `mapstructure:"reporter"`

	AMQP struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"amqp"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	SSH struct {
		KeyFile     string        `mapstructure:"key_file"`
		KnownHosts  string        `mapstructure:"known_hosts"`
		Port        int           `mapstructure:"port"`
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
		DialRetries uint64        `mapstructure:"dial_retries"`
	} `mapstructure:"ssh"`

	Monitor struct {
		Addr     string `mapstructure:"addr"`
		Prefetch int    `mapstructure:"prefetch"`
	} `mapstructure:"monitor"`
}

// defaults — значения по умолчанию. Каждый ключ должен быть здесь,
// иначе AutomaticEnv не увидит его при Unmarshal.
var defaults = map[string]any{
	"scratch_dir":       filepath.Join(os.TempDir(), "dagon"),
	"max_parallel":      0,
	"task_timeout":      time.Duration(0),
	"log.level":         "info",
	"log.format":        "text",
	"checkpoint.dir":    ".",
	"checkpoint.db_url": "",
	"reporter.url":      "",
	"reporter.timeout":  30 * time.Second,
	"reporter.retries":  uint64(0),
	"amqp.url":          "",
	"metrics.addr":      "",
	"ssh.key_file":      "",
	"ssh.known_hosts":   "",
	"ssh.port":          22,
	"ssh.dial_timeout":  10 * time.Second,
	"ssh.dial_retries":  uint64(3),
	"monitor.addr":      ":8080",
	"monitor.prefetch":  10,
}

// New создаёт Viper с умолчаниями, путями поиска dagon.yaml и
// переменными окружения DAGON_*. Ключ "reporter.url" читается
// из DAGON_REPORTER_URL.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("dagon")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".dagon"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load читает конфигурацию. Если file не пуст, читается только он
// и его отсутствие — ошибка; иначе dagon.yaml ищется в стандартных
// путях и может отсутствовать.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения.
func (c *Config) Validate() error {
	var errs []error
	if c.ScratchDir == "" {
		errs = append(errs, errors.New("scratch_dir is empty"))
	}
	if c.MaxParallel < 0 {
		errs = append(errs, fmt.Errorf("max_parallel must be >= 0, got %d", c.MaxParallel))
	}
	if c.TaskTimeout < 0 {
		errs = append(errs, fmt.Errorf("task_timeout must be >= 0, got %s", c.TaskTimeout))
	}
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		errs = append(errs, fmt.Errorf("ssh.port out of range: %d", c.SSH.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
