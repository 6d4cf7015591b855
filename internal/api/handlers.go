package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vbtlab/trainpipe/internal/flow"
	"github.com/vbtlab/trainpipe/internal/models"
)

// signaturePrefix is the scheme tag on X-Hub-Signature-256.
const signaturePrefix = "sha256="

// verifyHandler answers the platform's subscription handshake: echo
// hub.challenge when the verify token matches, refuse otherwise.
func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token == s.verifyToken {
		slog.Info("Server.verifyHandler: webhook verified")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge)); err != nil {
			slog.Error("Server.verifyHandler: failed to write challenge", "error", err)
		}
		return
	}
	slog.Warn("Server.verifyHandler: verification refused", "mode", mode)
	writeJSONResponse(w, http.StatusForbidden, models.Error("verification failed"))
}

// receiveHandler processes one webhook delivery. The response is always
// definitive: malformed payloads are acknowledged and dropped, never left
// for the platform to retry.
func (s *Server) receiveHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("Server.receiveHandler: failed to read request body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("unreadable request body"))
		return
	}

	if s.appSecret != "" && !s.validSignature(body, r.Header.Get("X-Hub-Signature-256")) {
		slog.Warn("Server.receiveHandler: signature verification failed")
		writeJSONResponse(w, http.StatusForbidden, models.Error("invalid signature"))
		return
	}

	payload, err := models.ParseWebhookPayload(body)
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			// Acknowledged and dropped: a retry would carry the same shape.
			slog.Warn("Server.receiveHandler: unrecognized webhook payload", "path", ve.Path, "reason", ve.Reason)
			writeJSONResponse(w, http.StatusOK, models.Error("not a recognized webhook event"))
			return
		}
		slog.Error("Server.receiveHandler: payload parsing failed", "error", err)
		writeJSONResponse(w, http.StatusOK, models.Error("not a recognized webhook event"))
		return
	}

	if payload.IsStatus() {
		status := payload.FirstStatus()
		slog.Debug("Server.receiveHandler: status update acknowledged",
			"message_id", status.ID, "status", status.Status, "recipient", status.RecipientID)
		writeJSONResponse(w, http.StatusOK, models.Success())
		return
	}

	evt, err := flow.NewEvent(payload)
	if err != nil {
		slog.Warn("Server.receiveHandler: event normalization failed", "error", err)
		writeJSONResponse(w, http.StatusOK, models.Error("not a recognized webhook event"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.engine.HandleEvent(ctx, evt); err != nil {
		var use *flow.UnknownStateError
		if errors.As(err, &use) {
			slog.Error("Server.receiveHandler: unknown user state", "state", use.State)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("unresolvable user state"))
			return
		}
		slog.Error("Server.receiveHandler: event handling failed", "error", err, "from", evt.From)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("event handling failed"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success())
}

// validSignature checks the HMAC-SHA256 of the raw body against the
// X-Hub-Signature-256 header.
func (s *Server) validSignature(body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.appSecret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
