package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitbounty/core/state"
	"gitbounty/native/bounty"
	"gitbounty/native/common"
	"gitbounty/observability"
	"gitbounty/oracle"
)

// Server is the HTTP front-end for the bounty ledger. Caller addresses
// arrive as hex fields in the request body; the RPC layer performs no
// signature verification, matching the glue-only role of this surface.
// Admin routes execute with the ledger owner's authority once the JWT
// guard admits the operator.
type Server struct {
	engine  *bounty.Engine
	manager *state.Manager
	pauses  *state.PauseRegistry
	secrets *oracle.SecretStore
	auth    *Authenticator
	limiter *ClientLimiter
	metrics *observability.BountyMetrics
	logger  *slog.Logger
}

// NewServer assembles the RPC surface around an engine and its state.
func NewServer(engine *bounty.Engine, manager *state.Manager, pauses *state.PauseRegistry, secrets *oracle.SecretStore, auth *Authenticator, logger *slog.Logger) *Server {
	if engine == nil {
		panic("rpc: engine required")
	}
	if manager == nil {
		panic("rpc: state manager required")
	}
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{}, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		manager: manager,
		pauses:  pauses,
		secrets: secrets,
		auth:    auth,
		limiter: NewClientLimiter(5, 10),
		metrics: observability.Metrics(),
		logger:  logger,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/bounty/fund", s.handleFund)
			r.Post("/bounty/claim", s.handleClaim)
			r.Post("/bounty/refund", s.handleRefund)
		})
		r.Get("/bounty/{key}", s.handleGet)
		r.Get("/balance/{addr}", s.handleBalance)
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware("bounty.admin"))
			r.Post("/secrets", s.handleSecrets)
			r.Post("/force-reject", s.handleForceReject)
			r.Post("/pause", s.handlePause)
		})
	})
	return r
}

type fundRequest struct {
	From      string `json:"from"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	RepoOwner string `json:"repoOwner"`
	RepoName  string `json:"repoName"`
	IssueID   string `json:"issueId"`
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid amount %q", req.Amount))
		return
	}
	b, err := s.engine.FundIssue(from, req.Token, amount, req.RepoOwner, req.RepoName, req.IssueID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, bountyView(b))
}

type claimRequest struct {
	From      string `json:"from"`
	Key       string `json:"key"`
	PRNumber  string `json:"prNumber"`
	RepoOwner string `json:"repoOwner"`
	RepoName  string `json:"repoName"`
	IssueID   string `json:"issueId"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	key, err := parseKey(req.Key)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := s.engine.ClaimBounty(from, key, req.PRNumber, req.RepoOwner, req.RepoName, req.IssueID)
	if err != nil {
		s.metrics.Claims.WithLabelValues("rejected").Inc()
		s.writeEngineError(w, err)
		return
	}
	s.metrics.Claims.WithLabelValues("accepted").Inc()
	s.writeJSON(w, http.StatusAccepted, bountyView(b))
}

type refundRequest struct {
	From string `json:"from"`
	Key  string `json:"key"`
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	key, err := parseKey(req.Key)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SeepFunds(from, key); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": bounty.StatusRefunded.String()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	b, ok := s.engine.Get(key)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("bounty not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, bountyView(b))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	token := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("token")))
	if token == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("token query parameter required"))
		return
	}
	balance := s.manager.BalanceOf(addr, token)
	s.writeJSON(w, http.StatusOK, map[string]string{"address": hex.EncodeToString(addr[:]), "token": token, "balance": balance.String()})
}

type secretsRequest struct {
	Slot    uint8  `json:"slot"`
	Version uint64 `json:"version"`
	Value   string `json:"value"`
}

func (s *Server) handleSecrets(w http.ResponseWriter, r *http.Request) {
	var req secretsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.UpdateSecrets(s.engine.Owner(), req.Slot, req.Version); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if s.secrets != nil && strings.TrimSpace(req.Value) != "" {
		s.secrets.Set(req.Slot, req.Version, req.Value)
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"slot": uint64(req.Slot), "version": req.Version})
}

type forceRejectRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleForceReject(w http.ResponseWriter, r *http.Request) {
	var req forceRejectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	key, err := parseKey(req.Key)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.ForceRejectClaim(s.engine.Owner(), key); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": bounty.StatusOpen.String()})
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.pauses == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("pause registry not configured"))
		return
	}
	module := strings.TrimSpace(req.Module)
	if module == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("module required"))
		return
	}
	s.pauses.SetPaused(module, req.Paused)
	s.writeJSON(w, http.StatusOK, map[string]bool{module: req.Paused})
}

func bountyView(b *bounty.Bounty) map[string]interface{} {
	if b == nil {
		return nil
	}
	view := map[string]interface{}{
		"key":       hex.EncodeToString(b.Key[:]),
		"issuer":    hex.EncodeToString(b.Issuer[:]),
		"token":     b.Token,
		"amount":    b.Amount.String(),
		"status":    b.Status.String(),
		"createdAt": b.CreatedAt,
		"repoOwner": b.RepoOwner,
		"repoName":  b.RepoName,
		"issueId":   b.IssueID,
	}
	if b.ClaimAuthor != "" {
		view["claimAuthor"] = b.ClaimAuthor
	}
	if b.ActiveRequestID != ([32]byte{}) {
		view["activeRequestId"] = hex.EncodeToString(b.ActiveRequestID[:])
	}
	return view
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 20 {
		return addr, fmt.Errorf("invalid address %q", raw)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseKey(raw string) ([32]byte, error) {
	var key [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 32 {
		return key, fmt.Errorf("invalid bounty key %q", raw)
	}
	copy(key[:], decoded)
	return key, nil
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bounty.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, bounty.ErrBountyExists),
		errors.Is(err, bounty.ErrInvalidStatus),
		errors.Is(err, bounty.ErrTimelockNotExpired),
		errors.Is(err, bounty.ErrGraceNotElapsed):
		status = http.StatusConflict
	case errors.Is(err, bounty.ErrInvalidAmount),
		errors.Is(err, bounty.ErrInvalidToken),
		errors.Is(err, bounty.ErrInvalidBountyKey):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, state.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	}
	s.writeError(w, status, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("rpc request failed", "status", status, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("rpc response encode failed", "err", err)
	}
}
