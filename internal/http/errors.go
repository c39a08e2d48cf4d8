package http

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/account-registry/internal/authz"
	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/registry"
	"github.com/quantumauth-io/account-registry/internal/store"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, registry.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrInvalidImplementation),
		errors.Is(err, registry.ErrInitializationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registry.ErrInvalidOwner),
		errors.Is(err, authz.ErrInvalidOwner),
		errors.Is(err, authz.ErrInvalidCredential),
		errors.Is(err, authz.ErrInvalidExpiration),
		errors.Is(err, chain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, authz.ErrNotRegistrySigner):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status. Internal errors are logged and not echoed.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusForbidden && errors.Is(err, registry.ErrUnauthorized) {
		msg = ErrTextUnauthorized
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			"request_id", c.GetString(ContextKeyRequestID),
			"path", c.FullPath(),
			"error", err,
		)
		msg = ErrTextInternal
	}
	c.JSON(status, gin.H{JSONKeyError: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: msg})
}
