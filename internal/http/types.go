package http

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

type healthRes struct {
	OK           bool        `json:"ok"`
	Ledger       common.Hash `json:"ledger"`
	Block        uint64      `json:"block"`
	IndexedBlock uint64      `json:"indexed_block"`
}

type registryRes struct {
	Address        common.Address `json:"address"`
	Implementation common.Address `json:"implementation"`
	Factory        common.Address `json:"factory"`
	Admin          common.Address `json:"admin"`
	Signer         common.Address `json:"signer"`
	SignerKind     string         `json:"signer_kind"`
	ChainID        string         `json:"chain_id"`
}

type accountRes struct {
	Address  common.Address  `json:"address"`
	Salt     common.Hash     `json:"salt"`
	Deployed bool            `json:"deployed"`
	Owner    *common.Address `json:"owner,omitempty"`
	Balance  string          `json:"balance"`
}

type createAccountReq struct {
	Salt       string `json:"salt"`
	Credential string `json:"credential"`
}

type txRes struct {
	Address     common.Address `json:"address"`
	TxHash      common.Hash    `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
}

type issueReq struct {
	Owner      common.Address        `json:"owner"`
	Salt       string                `json:"salt"`
	Credential string                `json:"credential"`
	Expiration *math.HexOrDecimal256 `json:"expiration"`
}

type authorizationRes struct {
	ID         string         `json:"id"`
	Registry   common.Address `json:"registry"`
	Signer     common.Address `json:"signer"`
	Owner      common.Address `json:"owner"`
	Salt       common.Hash    `json:"salt"`
	Expiration string         `json:"expiration"`
	Message    common.Hash    `json:"message"`
	Signature  hexutil.Bytes  `json:"signature"`
	IssuedAt   string         `json:"issued_at"`
}

type assignReq struct {
	Owner      common.Address        `json:"owner"`
	Salt       common.Hash           `json:"salt"`
	Expiration *math.HexOrDecimal256 `json:"expiration"`
	Message    common.Hash           `json:"message"`
	Signature  hexutil.Bytes         `json:"signature"`
	InitData   hexutil.Bytes         `json:"init_data"`
}

type setSignerReq struct {
	Signer common.Address `json:"signer"`
}

type setSignerRes struct {
	Signer     common.Address `json:"signer"`
	SignerKind string         `json:"signer_kind"`
	TxHash     common.Hash    `json:"tx_hash"`
}

type eventRes struct {
	BlockNumber uint64            `json:"block_number"`
	TxHash      common.Hash       `json:"tx_hash"`
	LogIndex    uint              `json:"log_index"`
	Contract    common.Address    `json:"contract"`
	Name        string            `json:"name"`
	Account     *common.Address   `json:"account,omitempty"`
	Fields      map[string]string `json:"fields"`
}
