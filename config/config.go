package config

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	postgres_wrapper "github.com/tradefront/fixdesk/pkg/infra/postgres"
	redis_wrapper "github.com/tradefront/fixdesk/pkg/infra/redis"
	"github.com/tradefront/fixdesk/pkg/oms/fixclient"
)

type ReconcileConfig struct {
	IntervalSeconds     int `yaml:"interval_seconds"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

type RiskConfig struct {
	MaxOrderQuantity int64  `yaml:"max_order_quantity"`
	MaxOrderNotional string `yaml:"max_order_notional"`
}

type JournalConfig struct {
	NATSUrl string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	Durable string `yaml:"durable"`
}

type AppConfig struct {
	ServiceName           string `yaml:"service_name"`
	ListenAddr            string `yaml:"listen_addr"`
	MetricsAddr           string `yaml:"metrics_addr"`
	CommandTimeoutSeconds int    `yaml:"command_timeout_seconds"`

	Gateway   *fixclient.Config `yaml:"gateway"`
	Reconcile *ReconcileConfig  `yaml:"reconcile"`
	Risk      *RiskConfig       `yaml:"risk"`
	Journal   *JournalConfig    `yaml:"journal"`

	AuditDB *postgres_wrapper.PostgresConfig `yaml:"audit_db"`
	Redis   *redis_wrapper.RedisConfig       `yaml:"redis"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}
