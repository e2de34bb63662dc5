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
	"sort"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"

	"github.com/blnkfinance/economy/model"
)

const (
	DEFAULT_PORT          = "5001"
	DEFAULT_DATA_DIR      = "./data"
	DEFAULT_TICKS_PER_DAY = 24000
	DEFAULT_HISTORY_LIMIT = 1000
	DEFAULT_WEBHOOK_QUEUE = "economy_webhooks"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"ECONOMY_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"ECONOMY_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"ECONOMY_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"ECONOMY_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"ECONOMY_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"ECONOMY_SERVER_PORT"`
}

// DataSourceConfig selects the document store. A plain path is a directory of JSON files;
// redis://, postgres://, mysql:// and sqlite:// select the other backends.
type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"ECONOMY_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"ECONOMY_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"ECONOMY_REDIS_SKIP_TLS_VERIFY"`
}

// FilesConfig names the document each component persists to.
type FilesConfig struct {
	Accounts     string `json:"accounts"`
	Transactions string `json:"transactions"`
	Interest     string `json:"interest"`
	Loans        string `json:"loans"`
	Credit       string `json:"credit"`
	Recurring    string `json:"recurring"`
	Savings      string `json:"savings"`
	Overdraft    string `json:"overdraft"`
}

type LedgerConfig struct {
	StartingBalance float64 `json:"starting_balance" envconfig:"ECONOMY_STARTING_BALANCE"`
	HistoryLimit    int     `json:"history_limit" envconfig:"ECONOMY_HISTORY_LIMIT"`
}

type SimulationConfig struct {
	TicksPerDay     int64  `json:"ticks_per_day" envconfig:"ECONOMY_TICKS_PER_DAY"`
	TickIntervalMs  int    `json:"tick_interval_ms" envconfig:"ECONOMY_TICK_INTERVAL_MS"`
	SaveIntervalSec int    `json:"save_interval_sec" envconfig:"ECONOMY_SAVE_INTERVAL_SEC"`
	BackupSchedule  string `json:"backup_schedule" envconfig:"ECONOMY_BACKUP_SCHEDULE"`
}

type InterestConfig struct {
	WeeklyRate   float64 `json:"weekly_rate"`
	MaxPerPayout float64 `json:"max_per_payout"`
	IntervalDays int64   `json:"interval_days"`
}

type LoanConfig struct {
	MinBalance         float64                            `json:"min_balance"`
	Tiers              map[model.LoanTier]model.LoanTerms `json:"tiers"`
	DisableCreditScore bool                               `json:"disable_credit_score" envconfig:"ECONOMY_LOANS_DISABLE_CREDIT_SCORE"`
}

type RecurringConfig struct {
	MaxPerPlayer int `json:"max_per_player"`
}

type SavingsConfig struct {
	MinDeposit             float64 `json:"min_deposit"`
	MaxPerPlayer           float64 `json:"max_per_player"`
	WeeklyRate             float64 `json:"weekly_rate"`
	LockDays               int64   `json:"lock_days"`
	EarlyWithdrawalPenalty float64 `json:"early_withdrawal_penalty"`
}

type OverdraftConfig struct {
	AutoRepayDay     int64   `json:"auto_repay_day"`
	PrisonDay        int64   `json:"prison_day"`
	DebtPerPrisonDay float64 `json:"debt_per_prison_day"`
}

// TaxBracket taxes the part of a balance above From at Rate.
type TaxBracket struct {
	From float64 `json:"from"`
	Rate float64 `json:"rate"`
}

type TaxConfig struct {
	FreeAmount float64      `json:"free_amount"`
	Brackets   []TaxBracket `json:"brackets"`
}

type PricingConfig struct {
	MinMultiplier float64 `json:"min_multiplier"`
	MaxMultiplier float64 `json:"max_multiplier"`
	Amplitude     float64 `json:"amplitude"`
	PeriodDays    int64   `json:"period_days"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"ECONOMY_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"ECONOMY_WEBHOOK_URL"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"ECONOMY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"ECONOMY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"ECONOMY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type QueueConfig struct {
	WebhookQueue     string `json:"webhook_queue"`
	MaxRetryAttempts int    `json:"max_retry_attempts"`
}

type BackupConfig struct {
	Dir                string `json:"dir" envconfig:"ECONOMY_BACKUP_DIR"`
	S3Bucket           string `json:"s3_bucket" envconfig:"ECONOMY_S3_BUCKET"`
	S3Region           string `json:"s3_region" envconfig:"ECONOMY_S3_REGION"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"ECONOMY_S3_ENDPOINT"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"ECONOMY_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"ECONOMY_AWS_SECRET_ACCESS_KEY"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"ECONOMY_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"ECONOMY_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Files           FilesConfig      `json:"files"`
	Ledger          LedgerConfig     `json:"ledger"`
	Simulation      SimulationConfig `json:"simulation"`
	Interest        InterestConfig   `json:"interest"`
	Loans           LoanConfig       `json:"loans"`
	Recurring       RecurringConfig  `json:"recurring"`
	Savings         SavingsConfig    `json:"savings"`
	Overdraft       OverdraftConfig  `json:"overdraft"`
	Tax             TaxConfig        `json:"tax"`
	Pricing         PricingConfig    `json:"pricing"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Queue           QueueConfig      `json:"queue"`
	Backup          BackupConfig     `json:"backup"`
}

// DefaultLoanTiers are the loan terms used when the configuration does not override them.
func DefaultLoanTiers() map[model.LoanTier]model.LoanTerms {
	return map[model.LoanTier]model.LoanTerms{
		model.LoanSmall:  {Amount: 5000, BaseRate: 0.10, DurationDays: 14, MinScore: 0},
		model.LoanMedium: {Amount: 25000, BaseRate: 0.15, DurationDays: 28, MinScore: 550},
		model.LoanLarge:  {Amount: 100000, BaseRate: 0.20, DurationDays: 56, MinScore: 650},
	}
}

// DefaultTaxBrackets is a progressive schedule over the tax-free amount.
func DefaultTaxBrackets() []TaxBracket {
	return []TaxBracket{
		{From: 10000, Rate: 0.01},
		{From: 50000, Rate: 0.02},
		{From: 100000, Rate: 0.03},
		{From: 500000, Rate: 0.05},
	}
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
	err = envconfig.Process("economy", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called economy.json with your config")
	}
	return c, nil
}

// Defaults returns a configuration with every default applied. Useful for tests and embedding.
func Defaults() *Configuration {
	cnf := &Configuration{}
	_ = cnf.validateAndAddDefaults()
	return cnf
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Economy Server"
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
	}
	if cnf.Server.Secure && cnf.Server.SecretKey == "" {
		return errors.New("secret key is required when server.secure is enabled")
	}

	if cnf.DataSource.Dns == "" {
		log.Printf("Warning: data source not specified. Using %s", DEFAULT_DATA_DIR)
		cnf.DataSource.Dns = DEFAULT_DATA_DIR
	}

	cnf.addFileDefaults()

	if cnf.Ledger.StartingBalance < 0 {
		return errors.New("ledger starting balance cannot be negative")
	}
	if cnf.Ledger.HistoryLimit <= 0 {
		cnf.Ledger.HistoryLimit = DEFAULT_HISTORY_LIMIT
	}

	if cnf.Simulation.TicksPerDay <= 0 {
		cnf.Simulation.TicksPerDay = DEFAULT_TICKS_PER_DAY
	}
	if cnf.Simulation.TickIntervalMs <= 0 {
		cnf.Simulation.TickIntervalMs = 50
	}
	if cnf.Simulation.SaveIntervalSec <= 0 {
		cnf.Simulation.SaveIntervalSec = 30
	}

	if cnf.Interest.WeeklyRate == 0 {
		cnf.Interest.WeeklyRate = 0.02
	}
	if cnf.Interest.MaxPerPayout == 0 {
		cnf.Interest.MaxPerPayout = 10000
	}
	if cnf.Interest.IntervalDays <= 0 {
		cnf.Interest.IntervalDays = 7
	}

	if cnf.Loans.MinBalance == 0 {
		cnf.Loans.MinBalance = 1000
	}
	if len(cnf.Loans.Tiers) == 0 {
		cnf.Loans.Tiers = DefaultLoanTiers()
	}
	for tier, terms := range cnf.Loans.Tiers {
		if terms.Amount <= 0 || terms.DurationDays <= 0 || terms.BaseRate < 0 {
			return errors.New("invalid loan terms for tier " + string(tier))
		}
	}

	if cnf.Recurring.MaxPerPlayer <= 0 {
		cnf.Recurring.MaxPerPlayer = 10
	}

	if cnf.Savings.MinDeposit == 0 {
		cnf.Savings.MinDeposit = 1000
	}
	if cnf.Savings.MaxPerPlayer == 0 {
		cnf.Savings.MaxPerPlayer = 1000000
	}
	if cnf.Savings.WeeklyRate == 0 {
		cnf.Savings.WeeklyRate = 0.05
	}
	if cnf.Savings.LockDays <= 0 {
		cnf.Savings.LockDays = 28
	}
	if cnf.Savings.EarlyWithdrawalPenalty == 0 {
		cnf.Savings.EarlyWithdrawalPenalty = 0.10
	}
	if cnf.Savings.EarlyWithdrawalPenalty < 0 || cnf.Savings.EarlyWithdrawalPenalty >= 1 {
		return errors.New("savings early withdrawal penalty must be in [0, 1)")
	}

	if cnf.Overdraft.AutoRepayDay <= 0 {
		cnf.Overdraft.AutoRepayDay = 7
	}
	if cnf.Overdraft.PrisonDay <= 0 {
		cnf.Overdraft.PrisonDay = 28
	}
	if cnf.Overdraft.DebtPerPrisonDay <= 0 {
		cnf.Overdraft.DebtPerPrisonDay = 1000
	}

	if cnf.Tax.FreeAmount == 0 && len(cnf.Tax.Brackets) == 0 {
		cnf.Tax.FreeAmount = 10000
	}
	if len(cnf.Tax.Brackets) == 0 {
		cnf.Tax.Brackets = DefaultTaxBrackets()
	}
	sort.Slice(cnf.Tax.Brackets, func(i, j int) bool { return cnf.Tax.Brackets[i].From < cnf.Tax.Brackets[j].From })

	if cnf.Pricing.MinMultiplier == 0 {
		cnf.Pricing.MinMultiplier = 0.5
	}
	if cnf.Pricing.MaxMultiplier == 0 {
		cnf.Pricing.MaxMultiplier = 2.0
	}
	if cnf.Pricing.MinMultiplier > cnf.Pricing.MaxMultiplier {
		return errors.New("pricing min multiplier is above max multiplier")
	}
	if cnf.Pricing.Amplitude == 0 {
		cnf.Pricing.Amplitude = 0.25
	}
	if cnf.Pricing.PeriodDays <= 0 {
		cnf.Pricing.PeriodDays = 28
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}

	if cnf.Backup.Dir == "" {
		cnf.Backup.Dir = "backups"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		cnf.RateLimit.Burst = ptr.Int(2 * int(*cnf.RateLimit.RequestsPerSecond))
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", *cnf.RateLimit.Burst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		cnf.RateLimit.RequestsPerSecond = ptr.Float64(float64(*cnf.RateLimit.Burst) / 2)
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", *cnf.RateLimit.RequestsPerSecond)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		cnf.RateLimit.CleanupIntervalSec = ptr.Int(10800) // 3 hours
	}

	return nil
}

func (cnf *Configuration) addFileDefaults() {
	files := &cnf.Files
	defaults := []struct {
		field *string
		name  string
	}{
		{&files.Accounts, "accounts.json"},
		{&files.Transactions, "transactions.json"},
		{&files.Interest, "interest.json"},
		{&files.Loans, "loans.json"},
		{&files.Credit, "credit_scores.json"},
		{&files.Recurring, "recurring_payments.json"},
		{&files.Savings, "savings.json"},
		{&files.Overdraft, "overdraft.json"},
	}
	for _, d := range defaults {
		if strings.TrimSpace(*d.field) == "" {
			*d.field = d.name
		}
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
