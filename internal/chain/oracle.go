package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/corvuslabs/credit-oracle-backend/pkg/config"
	pkgerrors "github.com/corvuslabs/credit-oracle-backend/pkg/errors"
)

// Plan is a subscription tier as stored on-chain.
type Plan struct {
	PriceUnits *big.Int `json:"priceUnits"`
	MonthlyCap *big.Int `json:"monthlyCap"`
	Active     bool     `json:"active"`
}

// Subscription is a user's current subscription state, with the plan
// definition joined in.
type Subscription struct {
	PlanID         *big.Int `json:"planId"`
	UsedThisWindow *big.Int `json:"usedThisWindow"`
	WindowStart    *big.Int `json:"windowStart"`
	Plan           Plan     `json:"plan"`
}

// Calldata is an unsigned transaction payload relayed to a browser wallet
// for signing; the oracle never signs these itself.
type Calldata struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// Oracle is the read-only side of the on-chain collaborator.
type Oracle struct {
	address  common.Address
	parsed   abi.ABI
	contract *bind.BoundContract
}

// NewOracle binds the read surface of the access contract. Requires the
// RPC endpoint and contract address; no signer.
func NewOracle(cfg config.ChainConfig) (*Oracle, error) {
	if !cfg.CanRead() {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "chain rpc url and contract address required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "contract address is not a valid address")
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc: %w", err)
	}

	parsed, err := parseAccessABI()
	if err != nil {
		return nil, fmt.Errorf("parsing access abi: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	return &Oracle{
		address:  address,
		parsed:   parsed,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
	}, nil
}

// UserCredits reads the authoritative on-chain credit balance.
func (o *Oracle) UserCredits(ctx context.Context, user string) (*big.Int, error) {
	var out []any
	err := o.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserCredits", common.HexToAddress(user))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeChain, err, "reading user credits")
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// UserSubscription reads the user's subscription and joins in its plan.
func (o *Oracle) UserSubscription(ctx context.Context, user string) (Subscription, error) {
	var out []any
	err := o.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserSubscription", common.HexToAddress(user))
	if err != nil {
		return Subscription{}, pkgerrors.Wrap(pkgerrors.CodeChain, err, "reading subscription")
	}

	sub := Subscription{
		PlanID:         abi.ConvertType(out[0], new(big.Int)).(*big.Int),
		UsedThisWindow: abi.ConvertType(out[1], new(big.Int)).(*big.Int),
		WindowStart:    abi.ConvertType(out[2], new(big.Int)).(*big.Int),
	}

	if sub.PlanID.Sign() > 0 {
		plan, err := o.plan(ctx, sub.PlanID)
		if err != nil {
			return Subscription{}, err
		}
		sub.Plan = plan
	}
	return sub, nil
}

// HasActiveSubscription reports whether the user holds a live plan.
func (o *Oracle) HasActiveSubscription(ctx context.Context, user string) (bool, error) {
	sub, err := o.UserSubscription(ctx, user)
	if err != nil {
		return false, err
	}
	return sub.PlanID.Sign() > 0 && sub.Plan.Active, nil
}

func (o *Oracle) plan(ctx context.Context, planID *big.Int) (Plan, error) {
	var out []any
	err := o.contract.Call(&bind.CallOpts{Context: ctx}, &out, "plans", planID)
	if err != nil {
		return Plan{}, pkgerrors.Wrap(pkgerrors.CodeChain, err, "reading plan")
	}
	return Plan{
		PriceUnits: abi.ConvertType(out[0], new(big.Int)).(*big.Int),
		MonthlyCap: abi.ConvertType(out[1], new(big.Int)).(*big.Int),
		Active:     out[2].(bool),
	}, nil
}

// EncodeAwardCredits prepares awardCredits calldata for a wallet-signed
// grant (the initial-grant flow).
func (o *Oracle) EncodeAwardCredits(user string, amount *big.Int, reason string) (Calldata, error) {
	data, err := o.parsed.Pack("awardCredits", common.HexToAddress(user), amount, reason)
	if err != nil {
		return Calldata{}, fmt.Errorf("packing awardCredits: %w", err)
	}
	return Calldata{To: o.address.Hex(), Data: hexPrefix(data)}, nil
}

// EncodeMemoryPointerUpdate prepares updateUserMemoryPointer calldata for
// the oracle/owner wallet to sign in the browser.
func (o *Oracle) EncodeMemoryPointerUpdate(user, memoryHash string) (Calldata, error) {
	data, err := o.parsed.Pack("updateUserMemoryPointer", common.HexToAddress(user), memoryHash)
	if err != nil {
		return Calldata{}, fmt.Errorf("packing updateUserMemoryPointer: %w", err)
	}
	return Calldata{To: o.address.Hex(), Data: hexPrefix(data)}, nil
}

func hexPrefix(data []byte) string {
	return "0x" + common.Bytes2Hex(data)
}
