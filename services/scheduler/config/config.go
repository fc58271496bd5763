package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the scheduler service.
type Config struct {
	LogLevel     string
	PostgresDSN  string
	KafkaBrokers string
	RedisAddr    string
	MetricsAddr  string
	OTelEndpoint string

	SweepSchedule string
	Lookahead     time.Duration
	MissedGrace   time.Duration

	NotifyTopic   string
	ReportsTopic  string
	ConsumerGroup string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		RedisAddr:    v.GetString("redis_addr"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),

		SweepSchedule: v.GetString("sweep_schedule"),
		Lookahead:     v.GetDuration("lookahead"),
		MissedGrace:   v.GetDuration("missed_grace"),

		NotifyTopic:   v.GetString("notify_topic"),
		ReportsTopic:  v.GetString("reports_topic"),
		ConsumerGroup: v.GetString("consumer_group"),
	}
}
