package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/proofrail/proofrail-agent/pkg/clarity"
	"github.com/proofrail/proofrail-agent/pkg/logger"
	"github.com/proofrail/proofrail-agent/pkg/models"
)

const (
	// DefaultNetwork is the default ledger network to connect to
	DefaultNetwork = testnet

	// DefaultPollInterval defines the default pause between cycles in milliseconds
	DefaultPollInterval = 30000

	// DefaultMinFeeAmount defines the minimum agent fee (token base units) for a job to be executed
	DefaultMinFeeAmount = "10000"

	// DefaultScanWindow defines how many of the most recent job ids are scanned each cycle
	DefaultScanWindow = 100

	// DefaultExpiryMarginBlocks defines the minimum number of blocks left before expiry
	DefaultExpiryMarginBlocks = 5

	// DefaultMaxRetries defines the number of broadcast attempts per transaction
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay defines the linear backoff step between broadcast attempts in milliseconds
	DefaultRetryBaseDelay = 1000

	// DefaultConfirmMaxWaitBlocks defines how many blocks to wait for a transaction to confirm
	DefaultConfirmMaxWaitBlocks = 10

	// DefaultConfirmPollInterval defines the confirmation polling interval in milliseconds
	DefaultConfirmPollInterval = 5000

	// DefaultSwapFactor defines the factor passed to the executor (1e8)
	DefaultSwapFactor = "100000000"

	// DefaultTxFee defines the fee in micro-STX attached to each contract call
	DefaultTxFee = 1000

	// DefaultPythAPIURL defines the Pyth Hermes endpoint used by the price gate
	DefaultPythAPIURL = "https://hermes.pyth.network"

	// DefaultPriceMaxAge defines the oldest acceptable price publish time
	DefaultPriceMaxAge = 60 * time.Second

	// DefaultPriceMaxConfidenceBps defines the widest acceptable confidence interval in basis points
	DefaultPriceMaxConfidenceBps = 200

	// DefaultPriceCacheTTL defines how long a price gate result is cached
	DefaultPriceCacheTTL = 15 * time.Second

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 3

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 10 * time.Minute

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Minute

	// DefaultMetricsPort defines the default port for the health and metrics server
	DefaultMetricsPort = "8080"

	// DefaultNATSSubjectPrefix defines the subject prefix for job events
	DefaultNATSSubjectPrefix = "proofrail.agent"

	// DefaultLogLevel defines the default log level
	DefaultLogLevel = "info"
)

// GetEnvNetwork returns the configured network from environment variables or defaults to testnet
func GetEnvNetwork() (Network, error) {
	name := os.Getenv("NETWORK")
	if name == "" {
		name = DefaultNetwork
	}
	network, err := GetNetwork(name)
	if err != nil {
		return Network{}, fmt.Errorf("invalid NETWORK value: %s, must be 'mainnet', 'testnet' or 'devnet'", name)
	}
	return network, nil
}

// GetEnvAPIEndpoint returns the ledger API endpoint, falling back to the network preset
func GetEnvAPIEndpoint(network Network) (string, error) {
	apiEndpoint := os.Getenv("API_ENDPOINT")
	if apiEndpoint == "" {
		return network.APIEndpoint, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(apiEndpoint); err != nil {
		return "", fmt.Errorf("invalid API_ENDPOINT value: %s, must be a valid URL", apiEndpoint)
	}
	return strings.TrimRight(apiEndpoint, "/"), nil
}

// GetEnvAgentAddress returns the configured agent address, empty if unset
func GetEnvAgentAddress() (string, error) {
	address := os.Getenv("AGENT_ADDRESS")
	if address == "" {
		return "", nil
	}
	if !clarity.IsValidAddress(address) {
		return "", fmt.Errorf("invalid AGENT_ADDRESS value: %s, must be a valid Stacks address", address)
	}
	return address, nil
}

// GetEnvContracts resolves every contract identity from CONTRACT_DEPLOYER and the per-contract overrides
func GetEnvContracts(network Network) (ContractsConfig, error) {
	deployer := os.Getenv("CONTRACT_DEPLOYER")
	if deployer == "" {
		deployer = network.DefaultDeployer
	}
	if deployer != "" && !clarity.IsValidAddress(deployer) {
		return ContractsConfig{}, fmt.Errorf("invalid CONTRACT_DEPLOYER value: %s, must be a valid Stacks address", deployer)
	}

	var contracts ContractsConfig
	targets := []struct {
		env  string
		name string
		dst  *models.ContractID
	}{
		{"JOB_ESCROW_CONTRACT", DefaultJobEscrowName, &contracts.JobEscrow},
		{"JOB_ROUTER_CONTRACT", DefaultJobRouterName, &contracts.JobRouter},
		{"INPUT_TOKEN_CONTRACT", DefaultInputTokenName, &contracts.InputToken},
		{"OUTPUT_TOKEN_CONTRACT", DefaultOutputTokenName, &contracts.OutputToken},
		{"SWAP_HELPER_CONTRACT", DefaultSwapHelperName, &contracts.SwapHelper},
		{"STAKING_CONTRACT", DefaultStakingName, &contracts.Staking},
		{"PYTH_ORACLE_CONTRACT", DefaultPythOracleName, &contracts.PythOracle},
	}

	for _, target := range targets {
		value := os.Getenv(target.env)
		if value == "" {
			if deployer == "" {
				return ContractsConfig{}, fmt.Errorf("%s is required when CONTRACT_DEPLOYER is not set", target.env)
			}
			value = deployer + "." + target.name
		} else if !strings.Contains(value, ".") && deployer != "" {
			// a bare name is resolved against the deployer
			value = deployer + "." + value
		}

		id, err := models.ParseContractID(value)
		if err != nil {
			return ContractsConfig{}, fmt.Errorf("invalid %s value: %s, must be ADDRESS.contract-name", target.env, value)
		}
		*target.dst = id
	}

	return contracts, nil
}

// GetEnvPollInterval returns the cycle polling interval
func GetEnvPollInterval() (time.Duration, error) {
	return getEnvMilliseconds("POLL_INTERVAL_MS", DefaultPollInterval)
}

// GetEnvMinFeeAmount returns the minimum fee for a job to be executed
func GetEnvMinFeeAmount() (*big.Int, error) {
	return getEnvAmount("MIN_FEE_AMOUNT", DefaultMinFeeAmount)
}

// GetEnvScanWindow returns the number of recent job ids scanned each cycle
func GetEnvScanWindow() (uint64, error) {
	n, err := getEnvPositiveInt("SCAN_WINDOW", DefaultScanWindow)
	return uint64(n), err
}

// GetEnvExpiryMarginBlocks returns the minimum blocks remaining before expiry
func GetEnvExpiryMarginBlocks() (int64, error) {
	margin := os.Getenv("EXPIRY_MARGIN_BLOCKS")
	if margin == "" {
		return DefaultExpiryMarginBlocks, nil
	}

	n, err := strconv.ParseInt(margin, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid EXPIRY_MARGIN_BLOCKS value: %s, must be an integer", margin)
	}
	if n < 0 {
		return 0, fmt.Errorf("EXPIRY_MARGIN_BLOCKS must be greater than or equal to 0")
	}
	return n, nil
}

// GetEnvMaxRetries returns the number of broadcast attempts per transaction
func GetEnvMaxRetries() (int, error) {
	return getEnvPositiveInt("MAX_RETRIES", DefaultMaxRetries)
}

// GetEnvRetryBaseDelay returns the linear backoff step between broadcast attempts
func GetEnvRetryBaseDelay() (time.Duration, error) {
	return getEnvMilliseconds("RETRY_BASE_DELAY_MS", DefaultRetryBaseDelay)
}

// GetEnvConfirmMaxWaitBlocks returns the confirmation window in blocks
func GetEnvConfirmMaxWaitBlocks() (uint64, error) {
	n, err := getEnvPositiveInt("CONFIRM_MAX_WAIT_BLOCKS", DefaultConfirmMaxWaitBlocks)
	return uint64(n), err
}

// GetEnvConfirmPollInterval returns the confirmation polling interval
func GetEnvConfirmPollInterval() (time.Duration, error) {
	return getEnvMilliseconds("CONFIRM_POLL_INTERVAL_MS", DefaultConfirmPollInterval)
}

// GetEnvSwapFactor returns the factor argument passed to the executor
func GetEnvSwapFactor() (*big.Int, error) {
	return getEnvAmount("SWAP_FACTOR", DefaultSwapFactor)
}

// GetEnvTxFee returns the fee attached to each contract call
func GetEnvTxFee() (uint64, error) {
	fee := os.Getenv("TX_FEE")
	if fee == "" {
		return DefaultTxFee, nil
	}

	n, err := strconv.ParseUint(fee, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid TX_FEE value: %s, must be a non-negative integer", fee)
	}
	return n, nil
}

// GetEnvPriceValidation returns the price gate configuration
func GetEnvPriceValidation() (PriceValidationConfig, error) {
	enabled, err := getEnvBool("PRICE_VALIDATION_ENABLED", false)
	if err != nil {
		return PriceValidationConfig{}, err
	}

	policy := PriceGateFailurePolicy(os.Getenv("PRICE_GATE_FAILURE_POLICY"))
	if policy == "" {
		policy = FailOpen
	}
	if policy != FailOpen && policy != FailClosed {
		return PriceValidationConfig{}, fmt.Errorf("invalid PRICE_GATE_FAILURE_POLICY value: %s, must be 'fail-open' or 'fail-closed'", policy)
	}

	apiURL := os.Getenv("PYTH_API_URL")
	if apiURL == "" {
		apiURL = DefaultPythAPIURL
	}
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return PriceValidationConfig{}, fmt.Errorf("invalid PYTH_API_URL value: %s, must be a valid URL", apiURL)
	}

	maxAge := DefaultPriceMaxAge
	if v := os.Getenv("PRICE_MAX_AGE"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return PriceValidationConfig{}, fmt.Errorf("invalid PRICE_MAX_AGE value: %s, must be a positive duration string", v)
		}
		maxAge = parsed
	}

	maxConf, err := getEnvPositiveInt("PRICE_MAX_CONFIDENCE_BPS", DefaultPriceMaxConfidenceBps)
	if err != nil {
		return PriceValidationConfig{}, err
	}

	return PriceValidationConfig{
		Enabled:          enabled,
		FailurePolicy:    policy,
		APIURL:           strings.TrimRight(apiURL, "/"),
		FeedID:           strings.TrimPrefix(os.Getenv("PYTH_FEED_ID"), "0x"),
		MaxAge:           maxAge,
		MaxConfidenceBps: uint64(maxConf),
		CacheTTL:         DefaultPriceCacheTTL,
	}, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = DefaultLogLevel
	}
	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %s, must be 'debug', 'info', 'notice' or 'error'", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log output is colored
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}

// GetEnvSignerURL returns the remote signer URL, empty if unset
func GetEnvSignerURL() (string, error) {
	signerURL := os.Getenv("SIGNER_URL")
	if signerURL == "" {
		return "", nil
	}
	if _, err := url.ParseRequestURI(signerURL); err != nil {
		return "", fmt.Errorf("invalid SIGNER_URL value: %s, must be a valid URL", signerURL)
	}
	return strings.TrimRight(signerURL, "/"), nil
}

// GetEnvNATSSubjectPrefix returns the subject prefix for published job events
func GetEnvNATSSubjectPrefix() string {
	prefix := os.Getenv("NATS_SUBJECT_PREFIX")
	if prefix == "" {
		return DefaultNATSSubjectPrefix
	}
	return strings.TrimSuffix(prefix, ".")
}

func getEnvBool(key string, def bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	if value == "true" {
		return true, nil
	} else if value == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
}

func getEnvPositiveInt(key string, def int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}

func getEnvMilliseconds(key string, def int) (time.Duration, error) {
	n, err := getEnvPositiveInt(key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	return parsed, nil
}

func getEnvAmount(key string, def string) (*big.Int, error) {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}

	amount := new(big.Int)
	if _, ok := amount.SetString(value, 10); !ok {
		return nil, fmt.Errorf("invalid %s value: %s, must be a valid integer string", key, value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s must be greater than or equal to 0", key)
	}
	return amount, nil
}
