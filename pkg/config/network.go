package config

import (
	"fmt"

	"github.com/proofrail/proofrail-agent/pkg/clarity"
)

const (
	mainnet = "mainnet"
	testnet = "testnet"
	devnet  = "devnet"
)

// Network describes a ledger network the agent can run against
type Network struct {
	Name string
	// APIEndpoint is the default Hiro API base URL
	APIEndpoint string
	// AddressVersion is the c32check version byte for single-sig accounts
	AddressVersion byte
	// DefaultDeployer is the account that deployed the escrow system on this network
	DefaultDeployer string
}

var networks = map[string]Network{
	mainnet: {
		Name:           mainnet,
		APIEndpoint:    "https://api.hiro.so",
		AddressVersion: clarity.MainnetSingleSig,
	},
	testnet: {
		Name:            testnet,
		APIEndpoint:     "https://api.testnet.hiro.so",
		AddressVersion:  clarity.TestnetSingleSig,
		DefaultDeployer: DevnetDeployer,
	},
	devnet: {
		Name:            devnet,
		APIEndpoint:     "http://localhost:3999",
		AddressVersion:  clarity.TestnetSingleSig,
		DefaultDeployer: DevnetDeployer,
	},
}

// GetNetwork returns the preset for a network name
func GetNetwork(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unsupported network: %s, must be 'mainnet', 'testnet' or 'devnet'", name)
	}
	return n, nil
}

// DevnetDeployer is the deployer account used by the local and test deployments
const DevnetDeployer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"

// Default contract names, resolved against CONTRACT_DEPLOYER unless overridden
const (
	DefaultJobEscrowName   = "job-escrow"
	DefaultJobRouterName   = "job-router"
	DefaultInputTokenName  = "mock-usdcx"
	DefaultOutputTokenName = "mock-alex"
	DefaultSwapHelperName  = "mock-swap-helper"
	DefaultStakingName     = "mock-alex-staking-v2"
	DefaultPythOracleName  = "pyth-price-oracle"
)
