// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ChainDescriptor is the full description of the required network, used by
// the add-chain fallback when the wallet does not know the chain.
type ChainDescriptor struct {
	ChainID          int64
	Name             string
	CurrencySymbol   string
	CurrencyDecimals int
	RPCURL           string
	ExplorerURL      string
}

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string

	// Wallet provider endpoints.
	ProviderURL       string // request/response endpoint; empty means no provider installed
	ProviderEventsURL string // websocket push-event endpoint; optional

	// Ledger contract the facade talks to.
	ContractAddress string
	Chain           ChainDescriptor

	// Local profile store.
	ProfileDir string

	// Timing knobs.
	ReconcileInterval   time.Duration // record-store reconciliation tick
	ConfirmPollInterval time.Duration // transaction receipt polling
	SessionPollInterval time.Duration // session poll backstop
}

// LoadConfig loads configuration from environment variables, with an
// optional .env file for local development.
func LoadConfig() (*AppConfig, error) {
	_ = godotenv.Load() // .env is optional

	serverPort := getEnv("SERVER_PORT", "8080")

	chainIDStr := getEnv("CHAIN_ID", "1043")
	chainID, err := strconv.ParseInt(chainIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAIN_ID: %w", err)
	}

	decimalsStr := getEnv("CHAIN_CURRENCY_DECIMALS", "18")
	decimals, err := strconv.Atoi(decimalsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAIN_CURRENCY_DECIMALS: %w", err)
	}

	profileDir := os.Getenv("PROFILE_DIR")
	if profileDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory for profile store: %w", err)
		}
		profileDir = filepath.Join(home, ".herdvest")
	}

	reconcile, err := getDurationEnv("RECONCILE_INTERVAL", 3*time.Second)
	if err != nil {
		return nil, err
	}
	confirmPoll, err := getDurationEnv("CONFIRM_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}
	sessionPoll, err := getDurationEnv("SESSION_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		ServerPort:        serverPort,
		ProviderURL:       os.Getenv("PROVIDER_URL"),
		ProviderEventsURL: os.Getenv("PROVIDER_EVENTS_URL"),
		ContractAddress:   getEnv("CONTRACT_ADDRESS", "0x0f57B3cc15F1E3cA2D1cbb7fd0eAD67B6dE6dC92"),
		Chain: ChainDescriptor{
			ChainID:          chainID,
			Name:             getEnv("CHAIN_NAME", "Primordial BlockDAG Testnet"),
			CurrencySymbol:   getEnv("CHAIN_CURRENCY_SYMBOL", "BDAG"),
			CurrencyDecimals: decimals,
			RPCURL:           getEnv("CHAIN_RPC_URL", "https://rpc.primordial.bdagscan.com"),
			ExplorerURL:      getEnv("CHAIN_EXPLORER_URL", "https://primordial.bdagscan.com"),
		},
		ProfileDir:          profileDir,
		ReconcileInterval:   reconcile,
		ConfirmPollInterval: confirmPoll,
		SessionPollInterval: sessionPoll,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
