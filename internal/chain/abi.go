package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// accessABI is the narrow slice of the access contract the oracle touches:
// the batch award writes, the read helpers, and the calldata-only
// operations relayed to browser wallets.
const accessABI = `[
  {"type":"function","name":"awardCreditsBatch","stateMutability":"nonpayable","inputs":[{"name":"users","type":"address[]"},{"name":"amounts","type":"uint256[]"},{"name":"reason","type":"string"}],"outputs":[]},
  {"type":"function","name":"awardCredits","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"amount","type":"uint256"},{"name":"reason","type":"string"}],"outputs":[]},
  {"type":"function","name":"getUserCredits","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getUserSubscription","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"planId","type":"uint256"},{"name":"usedThisWindow","type":"uint256"},{"name":"windowStart","type":"uint256"}]},
  {"type":"function","name":"plans","stateMutability":"view","inputs":[{"name":"planId","type":"uint256"}],"outputs":[{"name":"priceUnits","type":"uint256"},{"name":"monthlyCap","type":"uint256"},{"name":"active","type":"bool"}]},
  {"type":"function","name":"updateUserMemoryPointer","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"memoryHash","type":"string"}],"outputs":[]}
]`

func parseAccessABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(accessABI))
}
