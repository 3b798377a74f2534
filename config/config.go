/*
Copyright 2024 Blnk Finance Authors.

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
	DEFAULT_PORT            = "5001"
	DEFAULT_REPORT_QUEUE    = "report"
	DEFAULT_EXPIRY_QUEUE    = "payment_expiry"
	DEFAULT_MONITORING_PORT = "5004"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL         bool   `json:"ssl" envconfig:"REGPAY_SERVER_SSL"`
	Secure      bool   `json:"secure" envconfig:"REGPAY_SERVER_SECURE"`
	SecretKey   string `json:"secret_key" envconfig:"REGPAY_SERVER_SECRET_KEY"`
	CallbackKey string `json:"callback_key" envconfig:"REGPAY_SERVER_CALLBACK_KEY"`
	Domain      string `json:"domain" envconfig:"REGPAY_SERVER_SSL_DOMAIN"`
	Email       string `json:"ssl_email" envconfig:"REGPAY_SERVER_SSL_EMAIL"`
	Port        string `json:"port" envconfig:"REGPAY_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns          string `json:"dns" envconfig:"REGPAY_DATA_SOURCE_DNS"`
	MaxOpenConns int    `json:"max_open_conns" envconfig:"REGPAY_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `json:"max_idle_conns" envconfig:"REGPAY_DATA_SOURCE_MAX_IDLE_CONNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"REGPAY_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"REGPAY_REDIS_SKIP_TLS_VERIFY"`
	// seconds a callback holds the per-invoice lock; 0 disables locking
	CallbackLockTTL int `json:"callback_lock_ttl" envconfig:"REGPAY_REDIS_CALLBACK_LOCK_TTL"`
	// seconds a committed registration stays cached; 0 disables the cache
	RegistrationCacheTTL int `json:"registration_cache_ttl" envconfig:"REGPAY_REDIS_REGISTRATION_CACHE_TTL"`
}

type PaymentConfig struct {
	Url        string `json:"url" envconfig:"REGPAY_PAYMENT_URL"`
	Token      string `json:"token" envconfig:"REGPAY_PAYMENT_TOKEN"`
	Timeout    int    `json:"timeout" envconfig:"REGPAY_PAYMENT_TIMEOUT"`
	MaxRetries int    `json:"max_retries" envconfig:"REGPAY_PAYMENT_MAX_RETRIES"`
	// minutes after which a still-pending payment raises an alert; 0 disables the watch
	StaleAfterMinutes int `json:"stale_after_minutes" envconfig:"REGPAY_PAYMENT_STALE_AFTER_MINUTES"`
}

type QueueConfig struct {
	ReportQueue    string `json:"report_queue" envconfig:"REGPAY_QUEUE_REPORT"`
	ExpiryQueue    string `json:"expiry_queue" envconfig:"REGPAY_QUEUE_EXPIRY"`
	Concurrency    int    `json:"concurrency" envconfig:"REGPAY_QUEUE_CONCURRENCY"`
	MonitoringPort string `json:"monitoring_port" envconfig:"REGPAY_QUEUE_MONITORING_PORT"`
}

type ReportServiceConfig struct {
	Url     string `json:"url" envconfig:"REGPAY_REPORT_URL"`
	Timeout int    `json:"timeout" envconfig:"REGPAY_REPORT_TIMEOUT"`
	Headers struct {
		Authorization string `json:"Authorization"`
	} `json:"headers"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"REGPAY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"REGPAY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"REGPAY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type TracingConfig struct {
	Enabled  bool   `json:"enabled" envconfig:"REGPAY_TRACING_ENABLED"`
	Endpoint string `json:"endpoint" envconfig:"REGPAY_TRACING_ENDPOINT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"REGPAY_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName   string              `json:"project_name" envconfig:"REGPAY_PROJECT_NAME"`
	Server        ServerConfig        `json:"server"`
	DataSource    DataSourceConfig    `json:"data_source"`
	Redis         RedisConfig         `json:"redis"`
	Payment       PaymentConfig       `json:"payment"`
	Queue         QueueConfig         `json:"queue"`
	ReportService ReportServiceConfig `json:"report_service"`
	Notification  Notification        `json:"notification"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	Tracing       TracingConfig       `json:"tracing"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("regpay", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called regpay.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Regpay Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Payment.Url == "" {
		log.Println("Error: Payment API url is empty. It's a required field.")
		return errors.New("payment url is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Payment.Url = strings.TrimRight(strings.TrimSpace(cnf.Payment.Url), "/")

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Server.Secure && cnf.Server.SecretKey == "" {
		return errors.New("secret key is required when server.secure is enabled")
	}

	if cnf.DataSource.MaxOpenConns <= 0 {
		cnf.DataSource.MaxOpenConns = 25
	}
	if cnf.DataSource.MaxIdleConns <= 0 {
		cnf.DataSource.MaxIdleConns = 10
	}

	if cnf.Redis.CallbackLockTTL < 0 {
		cnf.Redis.CallbackLockTTL = 0
	}
	if cnf.Redis.RegistrationCacheTTL < 0 {
		cnf.Redis.RegistrationCacheTTL = 0
	}

	if cnf.Payment.Timeout <= 0 {
		cnf.Payment.Timeout = 30
	}
	if cnf.Payment.MaxRetries <= 0 {
		cnf.Payment.MaxRetries = 3
	}
	if cnf.Payment.StaleAfterMinutes < 0 {
		cnf.Payment.StaleAfterMinutes = 0
	}

	if cnf.Queue.ReportQueue == "" {
		cnf.Queue.ReportQueue = DEFAULT_REPORT_QUEUE
	}
	if cnf.Queue.ExpiryQueue == "" {
		cnf.Queue.ExpiryQueue = DEFAULT_EXPIRY_QUEUE
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 10
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	if cnf.ReportService.Timeout <= 0 {
		cnf.ReportService.Timeout = 30
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
