package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the authorization server configuration
const (
	EnvAuthdPort            = "AUTHD_PORT"
	EnvAuthdChainID         = "AUTHD_CHAIN_ID"
	EnvAuthdTokenName       = "AUTHD_TOKEN_NAME"
	EnvAuthdTokenVersion    = "AUTHD_TOKEN_VERSION"
	EnvAuthdTokenAddress    = "AUTHD_TOKEN_ADDRESS"
	EnvAuthdRegistryBackend = "AUTHD_REGISTRY_BACKEND"
	EnvAuthdDataDir         = "AUTHD_DATA_DIR"
	EnvAuthdRedisAddress    = "AUTHD_REDIS_ADDRESS"
	EnvAuthdVerbose         = "AUTHD_VERBOSE"
)

// RegistryBackend selects the nonce registry implementation.
type RegistryBackend string

func (r RegistryBackend) String() string {
	return string(r)
}

const (
	RegistryBackendMemory RegistryBackend = "memory"
	RegistryBackendBadger RegistryBackend = "badger"
	RegistryBackendRedis  RegistryBackend = "redis"
)

// SupportedRegistryBackends lists the valid backend names for CLI help.
func SupportedRegistryBackends() string {
	return strings.Join([]string{
		RegistryBackendMemory.String(),
		RegistryBackendBadger.String(),
		RegistryBackendRedis.String(),
	}, ", ")
}

type ChainId uint64

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}

// GetSupportedChainIDsString returns supported chain IDs for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_EthereumAnvil)
}

// GenesisBalance funds an account on the in-memory ledger at startup.
type GenesisBalance struct {
	Address string `json:"address"`
	Balance string `json:"balance"` // decimal uint256
}

// AuthServerConfig represents the complete configuration for the
// authorization transfer server.
type AuthServerConfig struct {
	Port int `json:"port"`

	// Chain configuration; with TokenName/TokenVersion/TokenAddress it
	// fixes the domain separator all accepted signatures bind to.
	ChainID   ChainId   `json:"chain_id"`
	ChainName ChainName `json:"chain_name"`

	TokenName    string `json:"token_name"`
	TokenVersion string `json:"token_version"`
	TokenAddress string `json:"token_address"` // verifying contract address

	// Nonce registry backing store
	RegistryBackend RegistryBackend `json:"registry_backend"`
	DataDir         string          `json:"data_dir"`      // badger only
	RedisAddress    string          `json:"redis_address"` // redis only
	RedisPassword   string          `json:"redis_password,omitempty"`
	RedisDB         int             `json:"redis_db"`

	// Devnet ledger funding
	GenesisBalances []GenesisBalance `json:"genesis_balances,omitempty"`

	// Operational settings
	Verbose bool `json:"verbose"`
}

// Validate validates the server configuration and normalizes derived
// fields (chain name).
func (c *AuthServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	chainName, exists := ChainIdToName[c.ChainID]
	if !exists {
		allErrors = append(allErrors, field.Invalid(field.NewPath("chainId"), c.ChainID,
			fmt.Sprintf("unsupported chain ID. Supported: %s", GetSupportedChainIDsString())))
	} else {
		c.ChainName = chainName
	}

	if c.TokenName == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("tokenName"), "token name is required"))
	}
	if c.TokenVersion == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("tokenVersion"), "token version is required"))
	}
	if !common.IsHexAddress(c.TokenAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("tokenAddress"), c.TokenAddress, "invalid token address format"))
	}

	switch c.RegistryBackend {
	case RegistryBackendMemory:
	case RegistryBackendBadger:
		if c.DataDir == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataDir"), "data dir is required for the badger backend"))
		}
	case RegistryBackendRedis:
		if c.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redis address is required for the redis backend"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("registryBackend"), c.RegistryBackend,
			[]string{RegistryBackendMemory.String(), RegistryBackendBadger.String(), RegistryBackendRedis.String()}))
	}

	for i, gb := range c.GenesisBalances {
		path := field.NewPath("genesisBalances").Index(i)
		if !common.IsHexAddress(gb.Address) {
			allErrors = append(allErrors, field.Invalid(path.Child("address"), gb.Address, "invalid address format"))
		}
		if _, ok := new(big.Int).SetString(gb.Balance, 10); !ok {
			allErrors = append(allErrors, field.Invalid(path.Child("balance"), gb.Balance, "balance must be a decimal integer"))
		}
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
