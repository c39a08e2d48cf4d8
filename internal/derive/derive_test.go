package derive

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testImpl     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testRegistry = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestAddressMatchesEIP1014Vector(t *testing.T) {
	// Example 0 of EIP-1014.
	got := Address(common.Address{}, common.Hash{}, crypto.Keccak256Hash([]byte{0x00}))
	assert.Equal(t, common.HexToAddress("0x4D1A2e2bB4F88F0250f26Ffff098B0b30B26BF38"), got)
}

func TestProxyRuntimeLayout(t *testing.T) {
	runtime := ProxyRuntimeCode(testImpl, nil)
	require.Len(t, runtime, RuntimeLen)
	assert.Equal(t,
		"0x363d3d373d3d3d363d731111111111111111111111111111111111111111"+"5af43d82803e903d91602b57fd5bf3",
		hexutil.Encode(runtime))
}

func TestProxyCreationRoundTrip(t *testing.T) {
	args := testRegistry.Bytes()
	initCode := ProxyCreationCode(testImpl, args)

	require.Equal(t, byte(0x61), initCode[0])
	assert.Equal(t, RuntimeLen+len(args), int(initCode[1])<<8|int(initCode[2]))

	runtime, ok := RuntimeFromCreationCode(initCode)
	require.True(t, ok)
	assert.Equal(t, ProxyRuntimeCode(testImpl, args), runtime)

	impl, gotArgs, ok := ParseProxy(runtime)
	require.True(t, ok)
	assert.Equal(t, testImpl, impl)
	assert.Equal(t, args, gotArgs)
}

func TestRuntimeFromCreationCodeRejectsForeignCode(t *testing.T) {
	_, ok := RuntimeFromCreationCode([]byte{0x60, 0x00})
	assert.False(t, ok)

	initCode := ProxyCreationCode(testImpl, nil)
	initCode[2]++ // length no longer matches
	_, ok = RuntimeFromCreationCode(initCode)
	assert.False(t, ok)

	_, _, ok = ParseProxy([]byte("native:account"))
	assert.False(t, ok)
}

func TestAccountIsDeterministic(t *testing.T) {
	salt := crypto.Keccak256Hash([]byte("user@example.com"))

	a := Account(testRegistry, testImpl, salt)
	b := Account(testRegistry, testImpl, salt)
	assert.Equal(t, a, b)

	initCode := ProxyCreationCode(testImpl, testRegistry.Bytes())
	assert.Equal(t, Address(testRegistry, salt, crypto.Keccak256Hash(initCode)), a)
}

func TestAccountDependsOnEveryInput(t *testing.T) {
	salt := common.HexToHash("0x01")
	base := Account(testRegistry, testImpl, salt)

	assert.NotEqual(t, base, Account(testRegistry, testImpl, common.HexToHash("0x02")))
	assert.NotEqual(t, base, Account(common.HexToAddress("0x3333333333333333333333333333333333333333"), testImpl, salt))
	assert.NotEqual(t, base, Account(testRegistry, common.HexToAddress("0x4444444444444444444444444444444444444444"), salt))
}

func TestAccountWithZeroImplementationStillDerives(t *testing.T) {
	addr := Account(testRegistry, common.Address{}, common.HexToHash("0x01"))
	assert.NotEqual(t, common.Address{}, addr)
}

func TestRegistrySalt(t *testing.T) {
	deployer := common.HexToAddress("0x5555555555555555555555555555555555555555")

	want := crypto.Keccak256Hash(
		common.LeftPadBytes(deployer.Bytes(), 32),
		common.LeftPadBytes(big.NewInt(7).Bytes(), 32),
	)
	assert.Equal(t, want, RegistrySalt(deployer, big.NewInt(7)))
	assert.Equal(t, RegistrySalt(deployer, nil), RegistrySalt(deployer, big.NewInt(0)))
	assert.NotEqual(t, RegistrySalt(deployer, big.NewInt(1)), RegistrySalt(testRegistry, big.NewInt(1)))
}

func TestRegistryAddressDoesNotMutateIndex(t *testing.T) {
	index := big.NewInt(3)
	factory := common.HexToAddress("0x6666666666666666666666666666666666666666")
	_ = Registry(factory, testImpl, testRegistry, index)
	assert.Equal(t, int64(3), index.Int64())
}
