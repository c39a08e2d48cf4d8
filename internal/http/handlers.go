package http

import (
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gin-gonic/gin"

	"github.com/quantumauth-io/account-registry/internal/authz"
	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/account"
	"github.com/quantumauth-io/account-registry/internal/contracts/registry"
	"github.com/quantumauth-io/account-registry/internal/node"
	"github.com/quantumauth-io/account-registry/internal/store"
	"github.com/quantumauth-io/account-registry/internal/verifier"
)

type Handler struct {
	node *node.Node
}

func NewHandler(n *node.Node) *Handler {
	return &Handler{node: n}
}

func (h *Handler) callOpts(c *gin.Context) *chain.CallOpts {
	return &chain.CallOpts{Context: c.Request.Context()}
}

// Transactions are relayed from the service's own address.
func (h *Handler) txOpts(c *gin.Context) *chain.TransactOpts {
	return &chain.TransactOpts{From: h.node.Signer, Context: c.Request.Context()}
}

// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	indexed, err := h.node.Storage.LastBlock(c.Request.Context(), h.node.Ledger.Genesis())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, healthRes{
		OK:           true,
		Ledger:       h.node.Ledger.Genesis(),
		Block:        h.node.Ledger.Head().Number,
		IndexedBlock: indexed,
	})
}

// GET /api/registry
func (h *Handler) Registry(c *gin.Context) {
	reg := h.node.Stack.Registry
	opts := h.callOpts(c)

	impl, err := reg.Implementation(opts)
	if err != nil {
		writeError(c, err)
		return
	}
	admin, err := reg.Owner(opts)
	if err != nil {
		writeError(c, err)
		return
	}
	factory, err := reg.Factory(opts)
	if err != nil {
		writeError(c, err)
		return
	}
	s, err := reg.Signer(opts)
	if err != nil {
		writeError(c, err)
		return
	}

	res := registryRes{
		Address:        reg.Address(),
		Implementation: impl,
		Factory:        factory,
		Admin:          admin,
		ChainID:        h.node.Ledger.ChainID().String(),
	}
	if s != nil {
		res.Signer = s.Address()
		res.SignerKind = s.Kind().String()
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/accounts/:salt
func (h *Handler) GetAccount(c *gin.Context) {
	salt, ok := parseSalt(c.Param("salt"))
	if !ok {
		badRequest(c, ErrTextInvalidSalt)
		return
	}
	opts := h.callOpts(c)

	addr, err := h.node.Stack.Registry.Account(opts, salt)
	if err != nil {
		writeError(c, err)
		return
	}
	res := accountRes{
		Address: addr,
		Salt:    salt,
		Balance: h.node.Ledger.BalanceAt(addr).Dec(),
	}
	if len(h.node.Ledger.CodeAt(addr)) > 0 {
		res.Deployed = true
		owner, err := account.NewAccount(addr, h.node.Ledger).Owner(opts)
		if err != nil {
			writeError(c, err)
			return
		}
		if owner != (common.Address{}) {
			res.Owner = &owner
		}
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req createAccountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	salt, ok := saltOrCredential(c, req.Salt, req.Credential)
	if !ok {
		return
	}

	addr, receipt, err := h.node.Stack.Registry.CreateAccount(h.txOpts(c), salt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txRes{Address: addr, TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber})
}

// POST /api/accounts/assign
func (h *Handler) AssignAccount(c *gin.Context) {
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(req.Signature) == 0 {
		badRequest(c, ErrTextMissingSignature)
		return
	}
	exp, ok := expirationOf(req.Expiration)
	if !ok {
		badRequest(c, ErrTextInvalidExpiration)
		return
	}

	addr, receipt, err := h.node.Stack.Registry.AssignAccount(h.txOpts(c), registry.Assignment{
		Authorization: verifier.Authorization{
			Owner:      req.Owner,
			Salt:       req.Salt,
			Expiration: exp,
			Message:    req.Message,
			Signature:  req.Signature,
		},
		InitData: req.InitData,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txRes{Address: addr, TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber})
}

// POST /api/authorizations
func (h *Handler) IssueAuthorization(c *gin.Context) {
	var req issueReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	salt, ok := saltOrCredential(c, req.Salt, req.Credential)
	if !ok {
		return
	}
	var exp *big.Int
	if req.Expiration != nil {
		exp = (*big.Int)(req.Expiration)
	}

	issued, err := h.node.Issuer.Issue(c.Request.Context(), authz.Request{
		Owner:      req.Owner,
		Salt:       salt,
		Expiration: exp,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authorizationRes{
		ID:         issued.ID,
		Registry:   issued.Registry,
		Signer:     issued.Signer,
		Owner:      issued.Owner,
		Salt:       issued.Salt,
		Expiration: issued.Expiration.String(),
		Message:    issued.Message,
		Signature:  issued.Signature,
		IssuedAt:   issued.IssuedAt.Format(time.RFC3339),
	})
}

// GET /api/authorizations?owner=0x...
func (h *Handler) ListAuthorizations(c *gin.Context) {
	owner, ok := optionalAddress(c.Query("owner"))
	if !ok {
		badRequest(c, ErrTextInvalidAddress)
		return
	}
	recs, err := h.node.Storage.ListAuthorizations(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]authorizationRes, 0, len(recs))
	for _, r := range recs {
		out = append(out, authorizationRes{
			ID:         r.ID,
			Registry:   r.Registry,
			Signer:     r.Signer,
			Owner:      r.Owner,
			Salt:       r.Salt,
			Expiration: r.Expiration.String(),
			Message:    r.Digest,
			Signature:  r.Signature,
			IssuedAt:   r.IssuedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/signer
func (h *Handler) SetSigner(c *gin.Context) {
	var req setSignerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	receipt, err := h.node.Stack.Registry.SetSigner(h.txOpts(c), req.Signer)
	if err != nil {
		writeError(c, err)
		return
	}
	s, err := h.node.Stack.Registry.Signer(h.callOpts(c))
	if err != nil {
		writeError(c, err)
		return
	}
	res := setSignerRes{TxHash: receipt.TxHash}
	if s != nil {
		res.Signer = s.Address()
		res.SignerKind = s.Kind().String()
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/events?account=0x...
func (h *Handler) ListEvents(c *gin.Context) {
	acct, ok := optionalAddress(c.Query("account"))
	if !ok {
		badRequest(c, ErrTextInvalidAddress)
		return
	}
	evs, err := h.node.Storage.ListEvents(c.Request.Context(), h.node.Ledger.Genesis(), acct)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]eventRes, 0, len(evs))
	for _, ev := range evs {
		out = append(out, toEventRes(ev))
	}
	c.JSON(http.StatusOK, out)
}

func toEventRes(ev store.Event) eventRes {
	res := eventRes{
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		Contract:    ev.Contract,
		Name:        ev.Name,
		Fields:      ev.Fields,
	}
	if ev.Account != (common.Address{}) {
		a := ev.Account
		res.Account = &a
	}
	return res
}

func parseSalt(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

// saltOrCredential resolves the salt of a request that names it either
// directly or through a credential. It writes the 400 itself.
func saltOrCredential(c *gin.Context, salt, credential string) (common.Hash, bool) {
	hasSalt := strings.TrimSpace(salt) != ""
	hasCredential := strings.TrimSpace(credential) != ""
	if hasSalt == hasCredential {
		badRequest(c, ErrTextSaltOrCredential)
		return common.Hash{}, false
	}
	if hasSalt {
		h, ok := parseSalt(salt)
		if !ok {
			badRequest(c, ErrTextInvalidSalt)
		}
		return h, ok
	}
	h, err := authz.CredentialSalt(credential)
	if err != nil {
		writeError(c, err)
		return common.Hash{}, false
	}
	return h, true
}

func optionalAddress(s string) (common.Address, bool) {
	if s == "" {
		return common.Address{}, true
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func expirationOf(v *math.HexOrDecimal256) (*big.Int, bool) {
	if v == nil {
		return new(big.Int), true
	}
	exp := (*big.Int)(v)
	if exp.Sign() < 0 || exp.BitLen() > 256 {
		return nil, false
	}
	return exp, true
}
