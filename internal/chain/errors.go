package chain

import "github.com/cockroachdb/errors"

var (
	ErrWriteProtection          = errors.New("write protection")
	ErrInsufficientBalance      = errors.New("insufficient balance for transfer")
	ErrContractAddressCollision = errors.New("contract address collision")
	ErrUnsupportedInitCode      = errors.New("unsupported init code")
	ErrUnknownCode              = errors.New("no native implementation for code")
	ErrDepth                    = errors.New("max call depth exceeded")
	ErrNonPayable               = errors.New("method is not payable")
	ErrUnknownMethod            = errors.New("unknown method selector")
	ErrNoReceive                = errors.New("contract does not accept plain transfers")
	ErrInvalidInput             = errors.New("invalid call input")
	ErrNativeNameTaken          = errors.New("native name bound to another contract")
)
