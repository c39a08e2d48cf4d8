package http

const (
	JSONKeyOK    = "ok"
	JSONKeyError = "error"

	HeaderRequestID     = "X-Request-ID"
	HeaderAuthorization = "Authorization"
	BearerPrefix        = "Bearer "

	ContextKeyRequestID = "request_id"
	ContextKeySubject   = "subject"

	AdminRole = "admin"
)

const (
	ErrTextInvalidSalt       = "salt must be a 32-byte hex string"
	ErrTextInvalidAddress    = "invalid address"
	ErrTextSaltOrCredential  = "exactly one of salt or credential is required"
	ErrTextMissingToken      = "missing bearer token"
	ErrTextInvalidToken      = "invalid token"
	ErrTextUnauthorized      = "unauthorized"
	ErrTextInternal          = "internal error"
	ErrTextMissingSignature  = "signature is required"
	ErrTextInvalidExpiration = "invalid expiration"
)
