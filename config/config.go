/*
Copyright 2024 Paycore Authors.

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
	Secure    bool   `json:"secure" envconfig:"PAYCORE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYCORE_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"PAYCORE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PAYCORE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"PAYCORE_REDIS_DNS"`
}

// GatewayConfig carries the acquiring gateway credentials. ProviderPublicKey
// is the fixed, provider-issued verification key: it is loaded once here at
// startup and nothing may reassign it at runtime. PrivateKey comes from the
// secret store and is never logged.
type GatewayConfig struct {
	BaseURL              string `json:"base_url" envconfig:"PAYCORE_GATEWAY_BASE_URL"`
	APIKey               string `json:"api_key" envconfig:"PAYCORE_GATEWAY_API_KEY"`
	AccountID            string `json:"account_id" envconfig:"PAYCORE_GATEWAY_ACCOUNT_ID"`
	MerchantCategoryCode string `json:"merchant_category_code" envconfig:"PAYCORE_GATEWAY_MCC"`
	QrName               string `json:"qr_name" envconfig:"PAYCORE_GATEWAY_QR_NAME"`
	WebhookURL           string `json:"webhook_url" envconfig:"PAYCORE_GATEWAY_WEBHOOK_URL"`
	RedirectURL          string `json:"redirect_url" envconfig:"PAYCORE_GATEWAY_REDIRECT_URL"`
	PrivateKey           string `json:"private_key" envconfig:"PAYCORE_GATEWAY_PRIVATE_KEY"`
	ProviderPublicKey    string `json:"provider_public_key" envconfig:"PAYCORE_GATEWAY_PROVIDER_PUBLIC_KEY"`
	TimeoutSeconds       int    `json:"timeout_seconds" envconfig:"PAYCORE_GATEWAY_TIMEOUT_SECONDS"`
	TimestampSkewMs      int64  `json:"timestamp_skew_ms" envconfig:"PAYCORE_GATEWAY_TIMESTAMP_SKEW_MS"`
}

type QueueConfig struct {
	ReconciliationQueue string `json:"reconciliation_queue" envconfig:"PAYCORE_QUEUE_RECONCILIATION_QUEUE"`
	ReconciliationCron  string `json:"reconciliation_cron" envconfig:"PAYCORE_QUEUE_RECONCILIATION_CRON"`
	MonitoringPort      string `json:"monitoring_port" envconfig:"PAYCORE_QUEUE_MONITORING_PORT"`
	MaxRetryAttempts    int    `json:"max_retry_attempts" envconfig:"PAYCORE_QUEUE_MAX_RETRY_ATTEMPTS"`
}

type ReconciliationConfig struct {
	Provider      string `json:"provider" envconfig:"PAYCORE_RECONCILIATION_PROVIDER"`
	DeliveryEmail string `json:"delivery_email" envconfig:"PAYCORE_RECONCILIATION_DELIVERY_EMAIL"`
}

type MailerConfig struct {
	Enabled   bool   `json:"enabled" envconfig:"PAYCORE_MAILER_ENABLED"`
	APIURL    string `json:"api_url" envconfig:"PAYCORE_MAILER_API_URL"`
	APIKey    string `json:"api_key" envconfig:"PAYCORE_MAILER_API_KEY"`
	FromEmail string `json:"from_email" envconfig:"PAYCORE_MAILER_FROM_EMAIL"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName    string               `json:"project_name" envconfig:"PAYCORE_PROJECT_NAME"`
	Server         ServerConfig         `json:"server"`
	DataSource     DataSourceConfig     `json:"data_source"`
	Redis          RedisConfig          `json:"redis"`
	Gateway        GatewayConfig        `json:"gateway"`
	Queue          QueueConfig          `json:"queue"`
	Reconciliation ReconciliationConfig `json:"reconciliation"`
	Mailer         MailerConfig         `json:"mailer"`
	Notification   Notification         `json:"notification"`
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
	err = envconfig.Process("paycore", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called paycore.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Paycore Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Gateway.ProviderPublicKey == "" {
		log.Println("Error: Gateway provider public key is empty. Webhook verification cannot run without it.")
		return errors.New("gateway provider public key is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Gateway.BaseURL = strings.TrimSpace(cnf.Gateway.BaseURL)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Gateway.TimeoutSeconds == 0 {
		cnf.Gateway.TimeoutSeconds = 30
	}

	if cnf.Gateway.TimestampSkewMs == 0 {
		cnf.Gateway.TimestampSkewMs = 300000 // 5 minutes
	}

	if cnf.Reconciliation.Provider == "" {
		cnf.Reconciliation.Provider = "optima_bank"
	}

	if cnf.Queue.ReconciliationQueue == "" {
		cnf.Queue.ReconciliationQueue = "paycore:reconciliation"
	}

	// daily settlement file goes out after the provider's own books close
	if cnf.Queue.ReconciliationCron == "" {
		cnf.Queue.ReconciliationCron = "0 7 * * *"
	}

	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}

	if cnf.Queue.MaxRetryAttempts == 0 {
		cnf.Queue.MaxRetryAttempts = 5
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
