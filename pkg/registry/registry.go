package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
)

// reputationRegistryABI covers the agent registry contract surface the
// engine touches: registration, reputation adjustments and per-audit
// validation marks.
const reputationRegistryABI = `[
	{"type":"function","name":"registerAgent","inputs":[{"name":"agent","type":"address"},{"name":"metadata","type":"string"}],"outputs":[]},
	{"type":"function","name":"updateReputation","inputs":[{"name":"agent","type":"address"},{"name":"delta","type":"int256"},{"name":"evidenceUri","type":"string"}],"outputs":[]},
	{"type":"function","name":"validateAgent","inputs":[{"name":"agent","type":"address"},{"name":"evidenceUri","type":"string"},{"name":"verified","type":"bool"}],"outputs":[]},
	{"type":"function","name":"isRegistered","inputs":[{"name":"agent","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"getReputation","inputs":[{"name":"agent","type":"address"}],"outputs":[{"name":"","type":"int256"}],"stateMutability":"view"},
	{"type":"function","name":"getValidation","inputs":[{"name":"agent","type":"address"},{"name":"evidenceUri","type":"string"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"}
]`

const DefaultTxTimeout = 30 * time.Second

// Config holds the chain connection settings for the reputation registry.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	TxTimeout       time.Duration
}

// boundContract is the subset of bind.BoundContract the registry uses.
type boundContract interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error)
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
}

// Registry writes agent reputation updates to the on-chain registry
// contract. All writes are side effects of engine decisions; callers log
// failures and move on rather than retrying inline.
type Registry struct {
	logger       logging.Logger
	config       Config
	contract     boundContract
	transactOpts *bind.TransactOpts
}

// NewRegistry connects to the chain and binds the registry contract.
func NewRegistry(logger logging.Logger, config Config) (*Registry, error) {
	if config.TxTimeout <= 0 {
		config.TxTimeout = DefaultTxTimeout
	}

	client, err := ethclient.Dial(config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(reputationRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(config.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid registry private key: %w", err)
	}

	transactOpts, err := bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(config.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	contract := bind.NewBoundContract(
		common.HexToAddress(config.ContractAddress),
		parsed,
		client,
		client,
		client,
	)

	logger.Infof("Bound reputation registry at %s (chain %d)", config.ContractAddress, config.ChainID)
	return &Registry{
		logger:       logger,
		config:       config,
		contract:     contract,
		transactOpts: transactOpts,
	}, nil
}

// RegisterAgent records a new agent in the registry.
func (r *Registry) RegisterAgent(ctx context.Context, agent string, metadata string) (string, error) {
	return r.transact(ctx, "registerAgent", common.HexToAddress(agent), metadata)
}

// UpdateReputation applies a signed reputation delta to an agent, citing the
// evidence (payout or audit reference) that earned it.
func (r *Registry) UpdateReputation(ctx context.Context, agent string, delta int64, evidenceURI string) (string, error) {
	return r.transact(ctx, "updateReputation", common.HexToAddress(agent), big.NewInt(delta), evidenceURI)
}

// ValidateAgent marks the outcome of one audit for an agent.
func (r *Registry) ValidateAgent(ctx context.Context, agent string, evidenceURI string, verified bool) (string, error) {
	return r.transact(ctx, "validateAgent", common.HexToAddress(agent), evidenceURI, verified)
}

func (r *Registry) transact(ctx context.Context, method string, params ...interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.TxTimeout)
	defer cancel()

	opts := *r.transactOpts
	opts.Context = ctx

	tx, err := r.contract.Transact(&opts, method, params...)
	if err != nil {
		return "", fmt.Errorf("registry %s failed: %w", method, err)
	}

	hash := tx.Hash().Hex()
	r.logger.Infof("Registry %s submitted: %s", method, hash)
	return hash, nil
}

// IsRegistered reports whether the agent exists in the registry.
func (r *Registry) IsRegistered(ctx context.Context, agent string) (bool, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := r.contract.Call(opts, &out, "isRegistered", common.HexToAddress(agent)); err != nil {
		return false, fmt.Errorf("registry isRegistered failed: %w", err)
	}
	if len(out) == 0 {
		return false, fmt.Errorf("registry isRegistered returned no value")
	}
	registered, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("registry isRegistered returned unexpected type %T", out[0])
	}
	return registered, nil
}

// GetReputation returns the agent's current reputation score.
func (r *Registry) GetReputation(ctx context.Context, agent string) (int64, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := r.contract.Call(opts, &out, "getReputation", common.HexToAddress(agent)); err != nil {
		return 0, fmt.Errorf("registry getReputation failed: %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("registry getReputation returned no value")
	}
	score, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("registry getReputation returned unexpected type %T", out[0])
	}
	return score.Int64(), nil
}

// GetValidation reports whether the given audit was marked verified for the
// agent.
func (r *Registry) GetValidation(ctx context.Context, agent string, evidenceURI string) (bool, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := r.contract.Call(opts, &out, "getValidation", common.HexToAddress(agent), evidenceURI); err != nil {
		return false, fmt.Errorf("registry getValidation failed: %w", err)
	}
	if len(out) == 0 {
		return false, fmt.Errorf("registry getValidation returned no value")
	}
	verified, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("registry getValidation returned unexpected type %T", out[0])
	}
	return verified, nil
}
