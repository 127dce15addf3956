/*
Copyright 2025 PayGrid Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"DISBURSE_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"DISBURSE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"DISBURSE_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"DISBURSE_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"DISBURSE_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"DISBURSE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"DISBURSE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"DISBURSE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"DISBURSE_REDIS_SKIP_TLS_VERIFY"`
}

type TypeSenseConfig struct {
	Dns string `json:"dns" envconfig:"DISBURSE_TYPESENSE_DNS"`
}

// ProviderConfig describes the payout provider the engine submits payments
// to. WebhookSecret signs inbound webhook deliveries and is required when a
// webhook endpoint is exposed.
type ProviderConfig struct {
	BaseUrl       string `json:"base_url" envconfig:"DISBURSE_PROVIDER_BASE_URL"`
	ApiKey        string `json:"api_key" envconfig:"DISBURSE_PROVIDER_API_KEY"`
	WebhookSecret string `json:"webhook_secret" envconfig:"DISBURSE_PROVIDER_WEBHOOK_SECRET"`
	Name          string `json:"name" envconfig:"DISBURSE_PROVIDER_NAME"`
	TimeoutSec    int    `json:"timeout_sec" envconfig:"DISBURSE_PROVIDER_TIMEOUT_SEC"`
	// Decimals is the number of fractional digits the provider expects in
	// payment amounts. Internal amounts are always integer minor units.
	Decimals   int32 `json:"decimals" envconfig:"DISBURSE_PROVIDER_DECIMALS"`
	MinorUnits int32 `json:"minor_units" envconfig:"DISBURSE_PROVIDER_MINOR_UNITS"`
}

// PayoutConfig tunes the disbursement cycle.
type PayoutConfig struct {
	MinimumAmount          int64 `json:"minimum_amount" envconfig:"DISBURSE_PAYOUT_MINIMUM_AMOUNT"`
	MaxRetries             int   `json:"max_retries" envconfig:"DISBURSE_PAYOUT_MAX_RETRIES"`
	RetryBaseDelaySec      int   `json:"retry_base_delay_sec" envconfig:"DISBURSE_PAYOUT_RETRY_BASE_DELAY_SEC"`
	RetryMaxDelaySec       int   `json:"retry_max_delay_sec" envconfig:"DISBURSE_PAYOUT_RETRY_MAX_DELAY_SEC"`
	BatchLimit             int   `json:"batch_limit" envconfig:"DISBURSE_PAYOUT_BATCH_LIMIT"`
	UnresolvedEventWaitSec int   `json:"unresolved_event_wait_sec" envconfig:"DISBURSE_PAYOUT_UNRESOLVED_EVENT_WAIT_SEC"`
}

type QueueConfig struct {
	PayoutQueue    string `json:"payout_queue" envconfig:"DISBURSE_QUEUE_PAYOUT"`
	WebhookQueue   string `json:"webhook_queue" envconfig:"DISBURSE_QUEUE_WEBHOOK"`
	IndexQueue     string `json:"index_queue" envconfig:"DISBURSE_QUEUE_INDEX"`
	NumberOfQueues int    `json:"number_of_queues" envconfig:"DISBURSE_QUEUE_NUMBER_OF_QUEUES"`
	MonitoringPort string `json:"monitoring_port" envconfig:"DISBURSE_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"DISBURSE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"DISBURSE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"DISBURSE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

// OtelGrafanaCloud carries OTLP exporter settings. They are exported as the
// standard OTEL_EXPORTER_* env variables before the tracer provider starts.
type OtelGrafanaCloud struct {
	OtelExporterOtlpProtocol string `json:"OTEL_EXPORTER_OTLP_PROTOCOL" envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL"`
	OtelExporterOtlpEndpoint string `json:"OTEL_EXPORTER_OTLP_ENDPOINT" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpHeaders  string `json:"OTEL_EXPORTER_OTLP_HEADERS" envconfig:"OTEL_EXPORTER_OTLP_HEADERS"`
}

type Configuration struct {
	ProjectName        string           `json:"project_name" envconfig:"DISBURSE_PROJECT_NAME"`
	ExportDir          string           `json:"export_dir" envconfig:"DISBURSE_EXPORT_DIR"`
	AwsAccessKeyId     string           `json:"aws_access_key_id"`
	AwsSecretAccessKey string           `json:"aws_secret_access_key"`
	S3BucketName       string           `json:"s3_bucket_name"`
	S3Region           string           `json:"s3_region"`
	EnableTelemetry    bool             `json:"enable_telemetry" envconfig:"DISBURSE_ENABLE_TELEMETRY"`
	Server             ServerConfig     `json:"server"`
	DataSource         DataSourceConfig `json:"data_source"`
	Redis              RedisConfig      `json:"redis"`
	TypeSense          TypeSenseConfig  `json:"typesense"`
	TypeSenseKey       string           `json:"type_sense_key"`
	Provider           ProviderConfig   `json:"provider"`
	Payout             PayoutConfig     `json:"payout"`
	Queue              QueueConfig      `json:"queue"`
	Notification       Notification     `json:"notification"`
	RateLimit          RateLimitConfig  `json:"rate_limit"`
	OtelGrafanaCloud   OtelGrafanaCloud `json:"otel_grafana_cloud"`
}

// SetGrafanaExporterEnvs publishes the configured OTLP settings as env
// variables so the OTel SDK picks them up.
func SetGrafanaExporterEnvs() error {
	cnf, err := Fetch()
	if err != nil {
		return err
	}
	if err := os.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", cnf.OtelGrafanaCloud.OtelExporterOtlpProtocol); err != nil {
		return err
	}
	if err := os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cnf.OtelGrafanaCloud.OtelExporterOtlpEndpoint); err != nil {
		return err
	}
	if err := os.Setenv("OTEL_EXPORTER_OTLP_HEADERS", cnf.OtelGrafanaCloud.OtelExporterOtlpHeaders); err != nil {
		return err
	}
	return nil
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("disburse", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called disburse.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Disburse Server"
	}

	if cnf.TypeSense.Dns == "" {
		cnf.TypeSense.Dns = "http://typesense:8108"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Provider.BaseUrl = strings.TrimSpace(cnf.Provider.BaseUrl)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Provider.Name == "" {
		cnf.Provider.Name = "mockpay"
	}
	if cnf.Provider.TimeoutSec <= 0 {
		cnf.Provider.TimeoutSec = 30
	}
	if cnf.Provider.Decimals <= 0 {
		cnf.Provider.Decimals = 2
	}
	if cnf.Provider.MinorUnits <= 0 {
		cnf.Provider.MinorUnits = 2
	}

	if cnf.Payout.MinimumAmount <= 0 {
		// $25.00 in minor units, the usual affiliate payout floor
		cnf.Payout.MinimumAmount = 2500
	}
	if cnf.Payout.MaxRetries <= 0 {
		cnf.Payout.MaxRetries = 5
	}
	if cnf.Payout.RetryBaseDelaySec <= 0 {
		cnf.Payout.RetryBaseDelaySec = 60
	}
	if cnf.Payout.RetryMaxDelaySec <= 0 {
		cnf.Payout.RetryMaxDelaySec = 3600
	}
	if cnf.Payout.BatchLimit <= 0 {
		cnf.Payout.BatchLimit = 500
	}
	if cnf.Payout.UnresolvedEventWaitSec <= 0 {
		cnf.Payout.UnresolvedEventWaitSec = 120
	}

	if cnf.Queue.PayoutQueue == "" {
		cnf.Queue.PayoutQueue = "new:payout"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.IndexQueue == "" {
		cnf.Queue.IndexQueue = "new:index"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 20
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
		log.Printf("Warning: Rate limit cleanup interval not specified. Setting default value: %d seconds", defaultCleanup)
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
