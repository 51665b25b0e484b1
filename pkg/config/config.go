package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/proofrail/proofrail-agent/pkg/clarity"
	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

// PriceGateFailurePolicy decides what happens to a job when the price gate itself errors
type PriceGateFailurePolicy string

const (
	// FailOpen lets the job through when the price gate cannot answer
	FailOpen PriceGateFailurePolicy = "fail-open"
	// FailClosed rejects the job when the price gate cannot answer
	FailClosed PriceGateFailurePolicy = "fail-closed"
)

// Config holds the configuration for the agent
type Config struct {
	Network              Network
	APIEndpoint          string
	AgentAddress         string
	PrivateKey           string
	SignerURL            string
	Contracts            ContractsConfig
	PollInterval         time.Duration
	MinFeeAmount         *big.Int
	ScanWindow           uint64
	ExpiryMarginBlocks   int64
	MaxRetries           int
	RetryBaseDelay       time.Duration
	ConfirmMaxWaitBlocks uint64
	ConfirmPollInterval  time.Duration
	SwapFactor           *big.Int
	TxFee                uint64
	PriceValidation      PriceValidationConfig
	CircuitBreaker       CircuitBreakerConfig
	LoggerConfig         LoggerConfig
	MetricsPort          string
	MetricsAPIKey        string
	StorePath            string
	NATSURL              string
	NATSSubjectPrefix    string
}

// ContractsConfig holds every contract the agent reads from or calls
type ContractsConfig struct {
	JobEscrow   models.ContractID
	JobRouter   models.ContractID
	InputToken  models.ContractID
	OutputToken models.ContractID
	SwapHelper  models.ContractID
	Staking     models.ContractID
	PythOracle  models.ContractID
}

// PriceValidationConfig holds the price gate configuration
type PriceValidationConfig struct {
	Enabled          bool
	FailurePolicy    PriceGateFailurePolicy
	APIURL           string
	FeedID           string
	MaxAge           time.Duration
	MaxConfidenceBps uint64
	CacheTTL         time.Duration
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return loadFromEnv()
}

// loadFromEnv builds the configuration from the process environment
func loadFromEnv() (*Config, error) {
	network, err := GetEnvNetwork()
	if err != nil {
		return nil, err
	}

	apiEndpoint, err := GetEnvAPIEndpoint(network)
	if err != nil {
		return nil, err
	}

	agentAddress, err := GetEnvAgentAddress()
	if err != nil {
		return nil, err
	}

	contracts, err := GetEnvContracts(network)
	if err != nil {
		return nil, err
	}

	pollInterval, err := GetEnvPollInterval()
	if err != nil {
		return nil, err
	}

	minFee, err := GetEnvMinFeeAmount()
	if err != nil {
		return nil, err
	}

	scanWindow, err := GetEnvScanWindow()
	if err != nil {
		return nil, err
	}

	expiryMargin, err := GetEnvExpiryMarginBlocks()
	if err != nil {
		return nil, err
	}

	maxRetries, err := GetEnvMaxRetries()
	if err != nil {
		return nil, err
	}

	retryBaseDelay, err := GetEnvRetryBaseDelay()
	if err != nil {
		return nil, err
	}

	confirmMaxWait, err := GetEnvConfirmMaxWaitBlocks()
	if err != nil {
		return nil, err
	}

	confirmPoll, err := GetEnvConfirmPollInterval()
	if err != nil {
		return nil, err
	}

	swapFactor, err := GetEnvSwapFactor()
	if err != nil {
		return nil, err
	}

	txFee, err := GetEnvTxFee()
	if err != nil {
		return nil, err
	}

	priceValidation, err := GetEnvPriceValidation()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	signerURL, err := GetEnvSignerURL()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Network:              network,
		APIEndpoint:          apiEndpoint,
		AgentAddress:         agentAddress,
		PrivateKey:           strings.TrimSpace(os.Getenv("AGENT_PRIVATE_KEY")),
		SignerURL:            signerURL,
		Contracts:            contracts,
		PollInterval:         pollInterval,
		MinFeeAmount:         minFee,
		ScanWindow:           scanWindow,
		ExpiryMarginBlocks:   expiryMargin,
		MaxRetries:           maxRetries,
		RetryBaseDelay:       retryBaseDelay,
		ConfirmMaxWaitBlocks: confirmMaxWait,
		ConfirmPollInterval:  confirmPoll,
		SwapFactor:           swapFactor,
		TxFee:                txFee,
		PriceValidation:      priceValidation,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
		MetricsPort:       metricsPort,
		MetricsAPIKey:     os.Getenv("METRICS_API_KEY"),
		StorePath:         os.Getenv("STORE_PATH"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: GetEnvNATSSubjectPrefix(),
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration and resolves the agent identity
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" && cfg.AgentAddress == "" {
		return fmt.Errorf("AGENT_PRIVATE_KEY or AGENT_ADDRESS environment variable is required")
	}
	if cfg.SignerURL == "" {
		return fmt.Errorf("SIGNER_URL environment variable is required")
	}

	// The identity is derived from the key when one is present
	if cfg.PrivateKey != "" {
		derived, err := clarity.AddressFromPrivateKey(cfg.PrivateKey, cfg.Network.AddressVersion)
		if err != nil {
			return fmt.Errorf("invalid AGENT_PRIVATE_KEY: %v", err)
		}
		if cfg.AgentAddress != "" && cfg.AgentAddress != derived {
			return fmt.Errorf("AGENT_ADDRESS %s does not match the address derived from AGENT_PRIVATE_KEY (%s)", cfg.AgentAddress, derived)
		}
		cfg.AgentAddress = derived
	}

	if cfg.PriceValidation.Enabled && cfg.PriceValidation.FeedID == "" {
		return fmt.Errorf("PYTH_FEED_ID is required when PRICE_VALIDATION_ENABLED is true")
	}
	return nil
}
