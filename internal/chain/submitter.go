package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/corvuslabs/credit-oracle-backend/pkg/config"
	pkgerrors "github.com/corvuslabs/credit-oracle-backend/pkg/errors"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

// Submitter signs and submits batch awards with the oracle key, then waits
// for the transaction to be mined before reporting success.
type Submitter struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	opts     *bind.TransactOpts
	from     common.Address
	cfg      config.ChainConfig
	logg     *logger.Logger
}

// NewSubmitter builds the signing side of the chain client. Requires the
// full chain config including the oracle private key.
func NewSubmitter(cfg config.ChainConfig, logg *logger.Logger) (*Submitter, error) {
	if !cfg.CanSign() {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "oracle signer not configured")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "contract address is not a valid address")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OraclePrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing oracle key: %w", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		return nil, fmt.Errorf("building transactor: %w", err)
	}

	parsed, err := parseAccessABI()
	if err != nil {
		return nil, fmt.Errorf("parsing access abi: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	return &Submitter{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		opts:     opts,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		cfg:      cfg,
		logg:     logg,
	}, nil
}

// From returns the oracle signer address.
func (s *Submitter) From() string {
	return s.from.Hex()
}

// AwardCreditsBatch submits one awardCreditsBatch transaction and blocks
// until it is mined or the confirmation window lapses. Returns the tx hash.
func (s *Submitter) AwardCreditsBatch(ctx context.Context, addresses []string, amounts []*big.Int, reason string) (string, error) {
	if len(addresses) == 0 || len(addresses) != len(amounts) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "address and amount lists must be non-empty and equal length")
	}

	users := make([]common.Address, len(addresses))
	for i, addr := range addresses {
		users[i] = common.HexToAddress(addr)
	}

	opts := *s.opts
	opts.Context = ctx
	tx, err := s.contract.Transact(&opts, "awardCreditsBatch", users, amounts, reason)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeChain, err, "submitting award batch")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"tx_hash":    tx.Hash().Hex(),
		"reason":     reason,
		"recipients": len(users),
	})
	s.logg.Info(ctx, "award batch submitted, waiting for confirmation")

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, s.client, tx)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeChain, err, "waiting for confirmation")
	}
	if receipt.Status != 1 {
		return "", pkgerrors.New(pkgerrors.CodeChain, "award batch transaction reverted").
			WithDetails(map[string]any{"tx_hash": tx.Hash().Hex()})
	}
	s.logg.Info(ctx, "award batch confirmed")
	return tx.Hash().Hex(), nil
}

// Close releases the underlying RPC connection.
func (s *Submitter) Close() {
	s.client.Close()
}
