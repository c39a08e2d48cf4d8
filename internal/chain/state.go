package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

type stateObject struct {
	balance  *uint256.Int
	nonce    uint64
	code     []byte
	codeHash common.Hash
	storage  map[common.Hash]common.Hash
}

// StateDB is the world state of the ledger. Every mutation is recorded in a
// journal so that a failed call can be rolled back to any snapshot.
type StateDB struct {
	objects map[common.Address]*stateObject
	journal []func()
	logs    []*types.Log
}

func NewStateDB() *StateDB {
	return &StateDB{objects: make(map[common.Address]*stateObject)}
}

func (s *StateDB) getOrNew(addr common.Address) *stateObject {
	if obj, ok := s.objects[addr]; ok {
		return obj
	}
	obj := &stateObject{
		balance: new(uint256.Int),
		storage: make(map[common.Hash]common.Hash),
	}
	s.objects[addr] = obj
	s.journal = append(s.journal, func() { delete(s.objects, addr) })
	return obj
}

func (s *StateDB) Exist(addr common.Address) bool {
	_, ok := s.objects[addr]
	return ok
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	if obj, ok := s.objects[addr]; ok {
		return new(uint256.Int).Set(obj.balance)
	}
	return new(uint256.Int)
}

func (s *StateDB) setBalance(obj *stateObject, v *uint256.Int) {
	prev := obj.balance
	obj.balance = v
	s.journal = append(s.journal, func() { obj.balance = prev })
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	obj := s.getOrNew(addr)
	s.setBalance(obj, new(uint256.Int).Add(obj.balance, amount))
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int) error {
	obj := s.getOrNew(addr)
	if obj.balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	s.setBalance(obj, new(uint256.Int).Sub(obj.balance, amount))
	return nil
}

// Transfer moves amount from one account to another, failing without side
// effects if the sender cannot cover it.
func (s *StateDB) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := s.SubBalance(from, amount); err != nil {
		return err
	}
	s.AddBalance(to, amount)
	return nil
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	if obj, ok := s.objects[addr]; ok {
		return obj.nonce
	}
	return 0
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64) {
	obj := s.getOrNew(addr)
	prev := obj.nonce
	obj.nonce = nonce
	s.journal = append(s.journal, func() { obj.nonce = prev })
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	if obj, ok := s.objects[addr]; ok {
		return obj.code
	}
	return nil
}

// GetCodeHash returns the zero hash for accounts without code.
func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	if obj, ok := s.objects[addr]; ok {
		return obj.codeHash
	}
	return common.Hash{}
}

func (s *StateDB) SetCode(addr common.Address, code []byte) {
	obj := s.getOrNew(addr)
	prevCode, prevHash := obj.code, obj.codeHash
	obj.code = common.CopyBytes(code)
	obj.codeHash = crypto.Keccak256Hash(code)
	s.journal = append(s.journal, func() {
		obj.code = prevCode
		obj.codeHash = prevHash
	})
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	if obj, ok := s.objects[addr]; ok {
		return obj.storage[key]
	}
	return common.Hash{}
}

func (s *StateDB) SetState(addr common.Address, key, value common.Hash) {
	obj := s.getOrNew(addr)
	prev, had := obj.storage[key]
	if value == (common.Hash{}) {
		delete(obj.storage, key)
	} else {
		obj.storage[key] = value
	}
	s.journal = append(s.journal, func() {
		if had {
			obj.storage[key] = prev
		} else {
			delete(obj.storage, key)
		}
	})
}

func (s *StateDB) AddLog(l *types.Log) {
	s.logs = append(s.logs, l)
	n := len(s.logs) - 1
	s.journal = append(s.journal, func() { s.logs = s.logs[:n] })
}

// Snapshot returns an identifier for the current journal position.
func (s *StateDB) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every change recorded after id.
func (s *StateDB) RevertToSnapshot(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}

// Finalise makes all journaled changes permanent and hands back the logs
// emitted since the last call.
func (s *StateDB) Finalise() []*types.Log {
	logs := s.logs
	s.logs = nil
	s.journal = s.journal[:0]
	return logs
}
