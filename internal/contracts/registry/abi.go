package registry

import "github.com/quantumauth-io/account-registry/internal/chain"

const abiJSON = `[
	{"type":"function","name":"initialize","stateMutability":"nonpayable",
		"inputs":[{"name":"implementation","type":"address"},{"name":"signer","type":"address"},{"name":"owner","type":"address"}],
		"outputs":[]},
	{"type":"function","name":"account","stateMutability":"view",
		"inputs":[{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"createAccount","stateMutability":"nonpayable",
		"inputs":[{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"assignAccount","stateMutability":"nonpayable",
		"inputs":[
			{"name":"owner","type":"address"},
			{"name":"salt","type":"bytes32"},
			{"name":"expiration","type":"uint256"},
			{"name":"message","type":"bytes32"},
			{"name":"signature","type":"bytes"},
			{"name":"initData","type":"bytes"}],
		"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"setSigner","stateMutability":"nonpayable",
		"inputs":[{"name":"newSigner","type":"address"}],"outputs":[]},
	{"type":"function","name":"transferOwnership","stateMutability":"nonpayable",
		"inputs":[{"name":"newOwner","type":"address"}],"outputs":[]},
	{"type":"function","name":"implementation","stateMutability":"view",
		"inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"signer","stateMutability":"view",
		"inputs":[],"outputs":[{"name":"signer","type":"address"},{"name":"isContract","type":"bool"}]},
	{"type":"function","name":"owner","stateMutability":"view",
		"inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"factory","stateMutability":"view",
		"inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"authorizationDigest","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"bytes32"},{"name":"expiration","type":"uint256"}],
		"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"event","name":"AccountCreated","anonymous":false,"inputs":[
		{"name":"account","type":"address","indexed":false},
		{"name":"implementation","type":"address","indexed":true},
		{"name":"salt","type":"bytes32","indexed":false}]},
	{"type":"event","name":"AccountAssigned","anonymous":false,"inputs":[
		{"name":"account","type":"address","indexed":true},
		{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"SignerUpdated","anonymous":false,"inputs":[
		{"name":"signer","type":"address","indexed":true},
		{"name":"isContract","type":"bool","indexed":false}]},
	{"type":"event","name":"OwnershipTransferred","anonymous":false,"inputs":[
		{"name":"previousOwner","type":"address","indexed":true},
		{"name":"newOwner","type":"address","indexed":true}]}
]`

// ABI is the account registry interface.
var ABI = chain.MustParseABI(abiJSON)
