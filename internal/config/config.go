// Package config загружает конфигурацию сервисов Orderflow.
//
// Порядок: значения по умолчанию → YAML-файл (если задан) → переменные окружения.
// Переменные окружения всегда важнее файла.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Orderflow/internal/mq"
	"github.com/shaiso/Orderflow/internal/notify"
	"github.com/shaiso/Orderflow/internal/orchestrator"
	"github.com/shaiso/Orderflow/internal/repo"
	"github.com/shaiso/Orderflow/internal/scheduler"
	"github.com/shaiso/Orderflow/internal/worker"
)

// EnvConfigPath — переменная с путём к YAML-файлу.
const EnvConfigPath = "ORDERFLOW_CONFIG"

// Config — конфигурация всех сервисов.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	RabbitMQURL string `yaml:"rabbitmq_url"`

	// RedisURL — пусто: блокировки внутри процесса.
	RedisURL string `yaml:"redis_url"`

	Kafka        KafkaConfig        `yaml:"kafka"`
	Ports        PortsConfig        `yaml:"ports"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Worker       WorkerConfig       `yaml:"worker"`
}

// KafkaConfig — публикация событий в Kafka. Пустой Brokers — выключено.
type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

// PortsConfig — HTTP-порты сервисов.
type PortsConfig struct {
	API          string `yaml:"api"`
	Orchestrator string `yaml:"orchestrator"`
	Worker       string `yaml:"worker"`
}

// OrchestratorConfig — параметры оркестрации.
type OrchestratorConfig struct {
	RetryDelay        time.Duration `yaml:"retry_delay"`
	MaxRetries        int           `yaml:"max_retries"`
	ReconcileSpec     string        `yaml:"reconcile_spec"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	StrictBlueprints  bool          `yaml:"strict_blueprints"`
}

// WorkerConfig — параметры исполнения tasks.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`

	// ProvisioningURL — адрес backend'а для HTTPExecutor.
	// Пусто: SimulatedExecutor.
	ProvisioningURL string `yaml:"provisioning_url"`

	// TaskTimeout — ограничение одного вызова executor'а.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	Simulation SimulationConfig `yaml:"simulation"`
}

// SimulationConfig — параметры SimulatedExecutor.
type SimulationConfig struct {
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	FailureRate float64       `yaml:"failure_rate"`
}

// Default возвращает конфигурацию для локальной разработки.
func Default() *Config {
	return &Config{
		DatabaseURL: repo.DefaultDSN,
		RabbitMQURL: mq.DefaultURL,
		Kafka: KafkaConfig{
			Topic: notify.DefaultKafkaTopic,
		},
		Ports: PortsConfig{
			API:          "8080",
			Orchestrator: "8083",
			Worker:       "8084",
		},
		Orchestrator: OrchestratorConfig{
			RetryDelay:        orchestrator.DefaultRetryDelay,
			MaxRetries:        3,
			ReconcileSpec:     orchestrator.DefaultReconcileSpec,
			VisibilityTimeout: orchestrator.DefaultVisibilityTimeout,
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			TaskTimeout: 30 * time.Second,
			Simulation: SimulationConfig{
				MinDelay:    worker.DefaultSimMinDelay,
				MaxDelay:    worker.DefaultSimMaxDelay,
				FailureRate: worker.DefaultSimFailureRate,
			},
		},
	}
}

// Load читает конфигурацию. Пустой path — путь из ORDERFLOW_CONFIG,
// если и он пуст, файл не читается.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path == "" {
		path, _ = lookup(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv накладывает переменные окружения поверх cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("DB_URL", &cfg.DatabaseURL)
	str("RABBITMQ_URL", &cfg.RabbitMQURL)
	str("REDIS_URL", &cfg.RedisURL)
	str("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("KAFKA_TOPIC", &cfg.Kafka.Topic)
	str("API_PORT", &cfg.Ports.API)
	str("ORCH_PORT", &cfg.Ports.Orchestrator)
	str("WORKER_PORT", &cfg.Ports.Worker)
	str("RECONCILE_SPEC", &cfg.Orchestrator.ReconcileSpec)
	str("PROVISIONING_URL", &cfg.Worker.ProvisioningURL)
	num("MAX_RETRIES", &cfg.Orchestrator.MaxRetries)
	num("WORKER_CONCURRENCY", &cfg.Worker.Concurrency)
	dur("VISIBILITY_TIMEOUT", &cfg.Orchestrator.VisibilityTimeout)
	dur("TASK_TIMEOUT", &cfg.Worker.TaskTimeout)

	// RETRY_DELAY_MS — в миллисекундах
	var retryMS int
	num("RETRY_DELAY_MS", &retryMS)
	if retryMS != 0 {
		cfg.Orchestrator.RetryDelay = time.Duration(retryMS) * time.Millisecond
	}

	if v, ok := lookup("STRICT_BLUEPRINTS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STRICT_BLUEPRINTS: %w", err))
		} else {
			cfg.Orchestrator.StrictBlueprints = b
		}
	}

	return errors.Join(errs...)
}

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	var errs []error

	if c.Orchestrator.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry_delay must be positive, got %s", c.Orchestrator.RetryDelay))
	}
	if c.Orchestrator.VisibilityTimeout <= 0 {
		errs = append(errs, fmt.Errorf("visibility_timeout must be positive, got %s", c.Orchestrator.VisibilityTimeout))
	}
	if c.Orchestrator.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("max_retries must be positive, got %d", c.Orchestrator.MaxRetries))
	}
	if spec := c.Orchestrator.ReconcileSpec; spec != "-" {
		if err := scheduler.ValidateSpec(spec); err != nil {
			errs = append(errs, fmt.Errorf("reconcile_spec: %w", err))
		}
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency))
	}
	if c.Worker.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("task_timeout must be positive, got %s", c.Worker.TaskTimeout))
	}
	sim := c.Worker.Simulation
	if sim.MinDelay < 0 || sim.MaxDelay < sim.MinDelay {
		errs = append(errs, fmt.Errorf("invalid simulation delay range [%s, %s]", sim.MinDelay, sim.MaxDelay))
	}
	if sim.FailureRate < 0 || sim.FailureRate > 1 {
		errs = append(errs, fmt.Errorf("simulation failure_rate must be in [0, 1], got %v", sim.FailureRate))
	}

	return errors.Join(errs...)
}

// Addr возвращает адрес для http.ListenAndServe.
func Addr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
