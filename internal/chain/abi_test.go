package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func TestAccessABIParses(t *testing.T) {
	parsed, err := parseAccessABI()
	if err != nil {
		t.Fatalf("parseAccessABI returned error: %v", err)
	}

	for _, name := range []string{
		"awardCreditsBatch",
		"awardCredits",
		"getUserCredits",
		"getUserSubscription",
		"plans",
		"updateUserMemoryPointer",
	} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Errorf("method %s missing from parsed abi", name)
		}
	}
}

func TestAwardCreditsBatchPacksRoundTrip(t *testing.T) {
	parsed, err := parseAccessABI()
	if err != nil {
		t.Fatalf("parseAccessABI returned error: %v", err)
	}

	users := []common.Address{
		common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"),
	}
	amounts := []*big.Int{big.NewInt(10), big.NewInt(3)}

	data, err := parsed.Pack("awardCreditsBatch", users, amounts, "like")
	if err != nil {
		t.Fatalf("Pack returned error: %v", err)
	}

	method := parsed.Methods["awardCreditsBatch"]
	if !strings.HasPrefix(hexutil.Encode(data), hexutil.Encode(method.ID)) {
		t.Fatal("packed calldata does not start with the method selector")
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("Unpack returned error: %v", err)
	}
	gotUsers := args[0].([]common.Address)
	gotAmounts := args[1].([]*big.Int)
	gotReason := args[2].(string)

	if len(gotUsers) != 2 || gotUsers[0] != users[0] || gotUsers[1] != users[1] {
		t.Errorf("unpacked users = %v, want %v", gotUsers, users)
	}
	if gotAmounts[0].Cmp(amounts[0]) != 0 || gotAmounts[1].Cmp(amounts[1]) != 0 {
		t.Errorf("unpacked amounts = %v, want %v", gotAmounts, amounts)
	}
	if gotReason != "like" {
		t.Errorf("unpacked reason = %q, want %q", gotReason, "like")
	}
}
