package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/wasend/internal/core/config"
	"github.com/hay-kot/wasend/internal/core/session"
	"github.com/hay-kot/wasend/internal/core/validate"
	"github.com/hay-kot/wasend/pkg/tmpl"
)

// StatusData is the readiness report shared by the status routes.
type StatusData struct {
	Ready  bool          `json:"ready"`
	Status string        `json:"status"`
	Phase  session.Phase `json:"phase"`
	Reason string        `json:"reason,omitempty"`
	Since  time.Time     `json:"since"`
	Debug  *StatusDebug  `json:"debug,omitempty"`
}

// StatusDebug is included in status reports when debug output is enabled.
type StatusDebug struct {
	Ready         bool      `json:"ready"`
	Connecting    bool      `json:"connecting"`
	HasConnection bool      `json:"hasConnection"`
	Timestamp     time.Time `json:"timestamp"`
}

func (s *Server) status() StatusData {
	snap := s.lifecycle.State().Snapshot()
	data := StatusData{
		Ready:  snap.Usable(),
		Status: snap.Status(),
		Phase:  snap.Phase,
		Reason: snap.Reason,
		Since:  snap.Since.UTC(),
	}
	if s.cfg.Debug {
		data.Debug = &StatusDebug{
			Ready:         snap.Ready,
			Connecting:    snap.Connecting,
			HasConnection: snap.Connection != nil,
			Timestamp:     time.Now().UTC(),
		}
	}
	return data
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": s.status()})
}

func (s *Server) handleSendStatus(c *gin.Context) {
	data := s.status()
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"ready": data.Ready, "status": data.Status}})
}

func (s *Server) handleAuthConfig(c *gin.Context) {
	required := s.cfg.SecretKey != ""
	message := "API endpoints are open (no authentication required)"
	if required {
		message = "Secret key authentication is required for all API endpoints"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"secretKeyRequired": required, "message": message},
	})
}

// handleInitBackground starts initialization and returns immediately.
func (s *Server) handleInitBackground(c *gin.Context) {
	if s.lifecycle.State().IsReady() {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "WhatsApp already initialized and ready",
			"ready":   true,
		})
		return
	}

	if _, err := s.lifecycle.EnsureReady(c.Request.Context()); err != nil {
		s.log.Error().Err(err).Msg("initialization failed")
		s.abortKind(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "WhatsApp initialization started. Check server terminal for QR code.",
		"ready":   s.lifecycle.State().IsReady(),
	})
}

// handleInitWait starts initialization and waits up to the configured
// timeout for the session to become ready. The attempt outlives the request.
func (s *Server) handleInitWait(c *gin.Context) {
	if s.lifecycle.State().IsReady() {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "WhatsApp already initialized and ready",
			"ready":   true,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.InitTimeout)
	defer cancel()

	ready, err := s.lifecycle.Initialize(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "WhatsApp initialization is in progress. Check server terminal for QR code.",
			"ready":   false,
		})
	case err != nil:
		s.log.Error().Err(err).Msg("initialization failed")
		s.abortKind(c, err, nil)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "WhatsApp initialization completed",
			"ready":   ready,
		})
	}
}

var fieldLabels = map[string]string{
	"number":  "Phone number",
	"message": "Message",
	"name":    "Name",
}

// handleSend validates the request, renders the message body and makes a
// single delivery attempt.
func (s *Server) handleSend(c *gin.Context) {
	body, err := parseBody(c)
	if err != nil {
		s.abortBody(c, err)
		return
	}

	if err := validate.Required(body.strings(), "number", "message", "name"); err != nil {
		var fieldErrs criterio.FieldErrors
		missing := []string{}
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				missing = append(missing, fe.Field)
			}
		}
		abortError(c, http.StatusBadRequest, CodeValidation,
			"Missing required fields: "+strings.Join(missing, ", "),
			gin.H{"missingFields": missing})
		return
	}

	fields := map[string]string{}
	for _, key := range []string{"number", "message", "name"} {
		v, ok := body.text(key)
		if !ok {
			abortError(c, http.StatusBadRequest, CodeValidation, fieldLabels[key]+" must be a string", nil)
			return
		}
		fields[key] = v
	}

	name := strings.TrimSpace(fields["name"])
	if err := validate.SenderName(name); err != nil {
		abortError(c, http.StatusBadRequest, CodeValidation, "Name "+err.Error(),
			gin.H{"providedLength": len([]rune(name))})
		return
	}
	if err := validate.MessageBody(fields["message"]); err != nil {
		abortError(c, http.StatusBadRequest, CodeValidation, "Message "+err.Error(), nil)
		return
	}

	if !s.lifecycle.State().IsReady() {
		abortError(c, http.StatusServiceUnavailable, CodeNotReady,
			"WhatsApp is not connected yet. Please check the server terminal for QR code.",
			gin.H{"ready": false})
		return
	}

	number := fields["number"]
	address, err := validate.Address(number, s.cfg.MinAddressDigits)
	if err != nil {
		s.abortAddress(c, number)
		return
	}

	text, err := tmpl.Render(s.cfg.MessageTemplate, config.MessageTemplateData{
		Name:    name,
		Message: fields["message"],
	})
	if err != nil {
		s.log.Error().Err(err).Msg("render message template")
		abortError(c, http.StatusInternalServerError, CodeInternal, "Failed to format message", s.details(nil, err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.SendTimeout)
	defer cancel()

	res := s.sender.Send(ctx, address, text)
	if !res.Success {
		status, code := statusFor(res.Kind)
		abortError(c, status, code, res.Detail, s.details(gin.H{"recipient": number}, res.Cause))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Message sent successfully",
		"data": gin.H{
			"recipient":     number,
			"recipientName": name,
		},
	})
}

// handleCheckNumber reports whether a number is registered without sending.
func (s *Server) handleCheckNumber(c *gin.Context) {
	body, err := parseJSON(c)
	if err != nil {
		s.abortBody(c, err)
		return
	}

	number, ok := body.text("number")
	if !ok || strings.TrimSpace(number) == "" {
		abortError(c, http.StatusBadRequest, CodeValidation, "Missing required fields: number",
			gin.H{"missingFields": []string{"number"}})
		return
	}

	if !s.lifecycle.State().IsReady() {
		abortError(c, http.StatusServiceUnavailable, CodeNotReady,
			"WhatsApp is not connected. Please initialize WhatsApp first.",
			gin.H{"ready": false})
		return
	}

	address, err := validate.Address(number, s.cfg.MinAddressDigits)
	if err != nil {
		s.abortAddress(c, number)
		return
	}

	check, err := s.sender.CheckRecipient(c.Request.Context(), address)
	if err != nil {
		s.abortKind(c, err, gin.H{"providedNumber": number})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": check})
}

func (s *Server) handleEvents(c *gin.Context) {
	entries := []session.JournalEntry{}
	if s.journal != nil {
		list, err := s.journal.List(c.Request.Context())
		if err != nil {
			s.log.Error().Err(err).Msg("list journal")
			abortError(c, http.StatusInternalServerError, CodeInternal, "Failed to read lifecycle events", s.details(nil, err))
			return
		}
		entries = append(entries, list...)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}

func (s *Server) abortAddress(c *gin.Context, number string) {
	abortError(c, http.StatusBadRequest, CodeInvalidNumberFormat,
		fmt.Sprintf("Invalid phone number format. Number must contain at least %d digits.", s.cfg.MinAddressDigits),
		gin.H{"providedNumber": number})
}

func (s *Server) abortBody(c *gin.Context, err error) {
	var berr *bodyError
	if errors.As(err, &berr) {
		abortError(c, http.StatusBadRequest, CodeBadRequest, berr.message, berr.details)
		return
	}
	abortError(c, http.StatusBadRequest, CodeBadRequest, "Failed to parse request body", s.details(nil, err))
}
