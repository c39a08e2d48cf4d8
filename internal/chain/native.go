package chain

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Method handles one ABI method. args are the unpacked inputs in declaration
// order; the returned values are packed against the method outputs.
type Method func(env *Env, args []interface{}) ([]interface{}, error)

type nativeMethod struct {
	method abi.Method
	fn     Method
}

// Native routes calldata to Go handlers by 4-byte selector.
type Native struct {
	abi     abi.ABI
	methods map[[4]byte]nativeMethod
	receive func(env *Env) error
}

// MustParseABI parses a JSON ABI definition known at compile time.
func MustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid ABI: %v", err))
	}
	return parsed
}

// NewNative binds handlers to the methods of contractABI by name. receive
// handles calls with empty calldata; nil rejects them. Binding a handler to
// a name the ABI does not declare is a programming error and panics.
func NewNative(contractABI abi.ABI, handlers map[string]Method, receive func(env *Env) error) *Native {
	n := &Native{
		abi:     contractABI,
		methods: make(map[[4]byte]nativeMethod, len(handlers)),
		receive: receive,
	}
	for name, fn := range handlers {
		m, ok := contractABI.Methods[name]
		if !ok {
			panic("chain: handler for undeclared method " + name)
		}
		var id [4]byte
		copy(id[:], m.ID)
		n.methods[id] = nativeMethod{method: m, fn: fn}
	}
	return n
}

func (n *Native) ABI() abi.ABI { return n.abi }

func (n *Native) Run(env *Env, input []byte) (ret []byte, err error) {
	if len(input) == 0 {
		if n.receive == nil {
			return nil, ErrNoReceive
		}
		return nil, n.receive(env)
	}
	if len(input) < 4 {
		return nil, ErrUnknownMethod
	}
	var id [4]byte
	copy(id[:], input[:4])
	nm, ok := n.methods[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "selector %x", id)
	}
	if !nm.method.IsPayable() && !env.value.IsZero() {
		return nil, errors.Wrap(ErrNonPayable, nm.method.Name)
	}
	args, err := nm.method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidInput, "%s: %v", nm.method.Name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			ret = nil
			err = errors.Newf("%s: panic: %v", nm.method.Name, r)
		}
	}()
	out, err := nm.fn(env, args)
	if err != nil {
		return nil, err
	}
	return nm.method.Outputs.Pack(out...)
}
