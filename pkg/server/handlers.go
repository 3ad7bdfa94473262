package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/grantmike/EIPs/pkg/types"
)

// Machine-readable rejection reason codes
const (
	reasonNotYetValid       = "not_yet_valid"
	reasonExpired           = "expired"
	reasonAlreadyUsed       = "already_used"
	reasonInvalidSignature  = "invalid_signature"
	reasonInsufficientFunds = "insufficient_funds"
	reasonMalformedRequest  = "malformed_request"
	reasonRateLimited       = "rate_limited"
	reasonInternal          = "internal_error"
)

// handleTransfer handles the /v1/transfer submission endpoint
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, requestID, reasonRateLimited, "submission rate limit exceeded")
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, requestID, reasonMalformedRequest, "failed to parse request: "+err.Error())
		return
	}

	relayer, auth, sig, err := req.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, requestID, reasonMalformedRequest, err.Error())
		return
	}

	err = s.engine.PermissionlessTransferWithAuthorization(r.Context(), relayer, auth, sig)
	if err != nil {
		status, reason := rejectionStatus(err)
		if reason == reasonInternal {
			s.logger.Sugar().Errorw("Transfer execution failed",
				"request_id", requestID,
				"authorizer", auth.From.Hex(),
				"error", err,
			)
		}
		writeError(w, status, requestID, reason, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TransferResponse{
		RequestID:  requestID,
		Status:     "settled",
		Authorizer: auth.From.Hex(),
		Nonce:      auth.Nonce.Hex(),
	})
}

// handleAuthorizationState handles GET /v1/authorizations/{authorizer}/{nonce}
func (s *Server) handleAuthorizationState(w http.ResponseWriter, r *http.Request) {
	authorizerHex := r.PathValue("authorizer")
	if !common.IsHexAddress(authorizerHex) {
		writeError(w, http.StatusBadRequest, "", reasonMalformedRequest, "invalid authorizer address")
		return
	}
	authorizer := common.HexToAddress(authorizerHex)

	nonce, err := types.NonceFromHex(r.PathValue("nonce"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", reasonMalformedRequest, "invalid nonce: "+err.Error())
		return
	}

	consumed, err := s.engine.IsAuthorizationUsed(r.Context(), authorizer, nonce)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", reasonInternal, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, AuthorizationStateResponse{
		Authorizer: authorizer.Hex(),
		Nonce:      nonce.Hex(),
		Consumed:   consumed,
	})
}

// handleBalance handles GET /v1/balances/{address}
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addressHex := r.PathValue("address")
	if !common.IsHexAddress(addressHex) {
		writeError(w, http.StatusBadRequest, "", reasonMalformedRequest, "invalid address")
		return
	}
	address := common.HexToAddress(addressHex)

	balance, err := s.ledger.BalanceOf(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", reasonInternal, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		Address: address.Hex(),
		Balance: balance.String(),
	})
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if err := s.registry.HealthCheck(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "", reasonInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rejectionStatus maps engine rejections to HTTP status codes and reason
// codes. Anything unrecognized is an internal error.
func rejectionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrNotYetValid):
		return http.StatusForbidden, reasonNotYetValid
	case errors.Is(err, types.ErrExpired):
		return http.StatusForbidden, reasonExpired
	case errors.Is(err, types.ErrAlreadyUsed):
		return http.StatusConflict, reasonAlreadyUsed
	case errors.Is(err, types.ErrInvalidSignature):
		return http.StatusUnauthorized, reasonInvalidSignature
	case errors.Is(err, types.ErrInsufficientFunds):
		return http.StatusPaymentRequired, reasonInsufficientFunds
	default:
		return http.StatusInternalServerError, reasonInternal
	}
}

func writeError(w http.ResponseWriter, status int, requestID, reason, message string) {
	writeJSON(w, status, ErrorResponse{
		RequestID: requestID,
		Reason:    reason,
		Message:   message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
