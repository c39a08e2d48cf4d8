package indexer

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/quantumauth-io/account-registry/internal/contracts/account"
	"github.com/quantumauth-io/account-registry/internal/contracts/factory"
	"github.com/quantumauth-io/account-registry/internal/contracts/registry"
	"github.com/quantumauth-io/account-registry/internal/store"
)

var knownABIs = []abi.ABI{registry.ABI, factory.ABI, account.ABI}

// Decode turns a log emitted by a registry, factory or account into an
// Event. ok is false for logs no known contract emits.
func Decode(lg *types.Log) (store.Event, bool, error) {
	if len(lg.Topics) == 0 {
		return store.Event{}, false, nil
	}
	var ev *abi.Event
	for _, a := range knownABIs {
		if e, err := a.EventByID(lg.Topics[0]); err == nil {
			ev = e
			break
		}
	}
	if ev == nil {
		return store.Event{}, false, nil
	}

	values := make(map[string]interface{})
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, lg.Topics[1:]); err != nil {
		return store.Event{}, false, fmt.Errorf("parse %s topics: %w", ev.Name, err)
	}
	if err := ev.Inputs.NonIndexed().UnpackIntoMap(values, lg.Data); err != nil {
		return store.Event{}, false, fmt.Errorf("unpack %s data: %w", ev.Name, err)
	}

	out := store.Event{
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
		Contract:    lg.Address,
		Name:        ev.Name,
		Fields:      make(map[string]string, len(values)),
	}
	for k, v := range values {
		out.Fields[k] = formatValue(v)
	}

	switch ev.Name {
	case "AccountCreated", "AccountAssigned":
		if a, ok := values["account"].(common.Address); ok {
			out.Account = a
		}
	case "OwnerUpdated", "TransactionExecuted":
		out.Account = lg.Address
	}
	return out, true, nil
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case [32]byte:
		return common.Hash(x).Hex()
	case []byte:
		return hexutil.Encode(x)
	case *big.Int:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
