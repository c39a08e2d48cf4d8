package account

import "github.com/quantumauth-io/account-registry/internal/chain"

const abiJSON = `[
	{"type":"function","name":"initialize","stateMutability":"nonpayable",
		"inputs":[{"name":"owner","type":"address"}],"outputs":[]},
	{"type":"function","name":"owner","stateMutability":"view",
		"inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"registry","stateMutability":"view",
		"inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"executeCall","stateMutability":"payable",
		"inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],
		"outputs":[{"name":"result","type":"bytes"}]},
	{"type":"function","name":"setOwner","stateMutability":"nonpayable",
		"inputs":[{"name":"newOwner","type":"address"}],"outputs":[]},
	{"type":"function","name":"isValidSignature","stateMutability":"view",
		"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
		"outputs":[{"name":"magicValue","type":"bytes4"}]},
	{"type":"function","name":"supportsInterface","stateMutability":"view",
		"inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"onERC721Received","stateMutability":"nonpayable",
		"inputs":[{"name":"operator","type":"address"},{"name":"from","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"data","type":"bytes"}],
		"outputs":[{"name":"","type":"bytes4"}]},
	{"type":"function","name":"onERC1155Received","stateMutability":"nonpayable",
		"inputs":[{"name":"operator","type":"address"},{"name":"from","type":"address"},{"name":"id","type":"uint256"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],
		"outputs":[{"name":"","type":"bytes4"}]},
	{"type":"function","name":"onERC1155BatchReceived","stateMutability":"nonpayable",
		"inputs":[{"name":"operator","type":"address"},{"name":"from","type":"address"},{"name":"ids","type":"uint256[]"},{"name":"values","type":"uint256[]"},{"name":"data","type":"bytes"}],
		"outputs":[{"name":"","type":"bytes4"}]},
	{"type":"event","name":"OwnerUpdated","anonymous":false,"inputs":[
		{"name":"previousOwner","type":"address","indexed":true},
		{"name":"newOwner","type":"address","indexed":true}]},
	{"type":"event","name":"TransactionExecuted","anonymous":false,"inputs":[
		{"name":"target","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false},
		{"name":"data","type":"bytes","indexed":false}]}
]`

// ABI is the account instance interface.
var ABI = chain.MustParseABI(abiJSON)

// Interface identifiers reported by supportsInterface.
var (
	InterfaceERC165          = [4]byte{0x01, 0xff, 0xc9, 0xa7}
	InterfaceERC1271         = [4]byte{0x16, 0x26, 0xba, 0x7e}
	InterfaceERC721Receiver  = [4]byte{0x15, 0x0b, 0x7a, 0x02}
	InterfaceERC1155Receiver = [4]byte{0x4e, 0x23, 0x12, 0xe0}

	erc721Received       = [4]byte{0x15, 0x0b, 0x7a, 0x02}
	erc1155Received      = [4]byte{0xf2, 0x3a, 0x6e, 0x61}
	erc1155BatchReceived = [4]byte{0xbc, 0x19, 0x7c, 0x81}
)
