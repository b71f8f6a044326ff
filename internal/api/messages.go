package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/goodtune/rollcall/internal/metrics"
)

// Message actions.
const (
	ActionGetData           = "getData"
	ActionGetTrackingStatus = "getTrackingStatus"
	ActionSetConsent        = "setConsent"
	ActionResetConsent      = "resetConsent"
	ActionStopTracking      = "stopTracking"
	ActionEnableTracking    = "enableTracking"
	ActionPing              = "ping"
)

const maxMessageBytes = 64 << 10

// MessageRequest is the body of POST /api/message.
type MessageRequest struct {
	Action   string `json:"action" validate:"required,max=64"`
	Consent  *bool  `json:"consent,omitempty"`
	Remember bool   `json:"remember,omitempty"`
}

type consentRequest struct {
	Consent *bool `validate:"required"`
}

// PingResponse answers ActionPing.
type PingResponse struct {
	Pong     bool   `json:"pong"`
	Platform string `json:"platform"`
	IsReady  bool   `json:"isReady"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		metrics.MessagesTotal.WithLabelValues("invalid", "error").Inc()
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		metrics.MessagesTotal.WithLabelValues("invalid", "error").Inc()
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	status, outcome := s.dispatch(w, r, req)
	if status >= http.StatusBadRequest {
		outcome = "error"
	}
	metrics.MessagesTotal.WithLabelValues(metricAction(req.Action), outcome).Inc()
}

// dispatch handles one message and returns the HTTP status it wrote.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req MessageRequest) (int, string) {
	ctx := r.Context()
	logger := s.logger.With().
		Str("request_id", RequestID(ctx)).
		Str("action", req.Action).
		Logger()

	switch req.Action {
	case ActionGetData:
		doc, ok := s.tracker.Export(s.config.Clock.Now())
		if !ok {
			writeJSON(w, http.StatusOK, nil)
			return http.StatusOK, "empty"
		}
		writeJSON(w, http.StatusOK, doc)

	case ActionGetTrackingStatus:
		writeJSON(w, http.StatusOK, s.tracker.Status())

	case ActionSetConsent:
		if err := s.validate.Struct(consentRequest{Consent: req.Consent}); err != nil {
			writeError(w, http.StatusBadRequest, "consent is required")
			return http.StatusBadRequest, "error"
		}
		if err := s.tracker.SetConsent(ctx, *req.Consent, req.Remember); err != nil {
			logger.Error().Err(err).Msg("Failed to record consent")
			writeError(w, http.StatusInternalServerError, err.Error())
			return http.StatusInternalServerError, "error"
		}
		writeSuccess(w)

	case ActionResetConsent:
		if err := s.tracker.ResetConsent(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to reset consent")
			writeError(w, http.StatusInternalServerError, err.Error())
			return http.StatusInternalServerError, "error"
		}
		writeSuccess(w)

	case ActionStopTracking:
		s.tracker.StopTracking()
		writeSuccess(w)

	case ActionEnableTracking:
		if err := s.tracker.EnableTracking(ctx); err != nil {
			logger.Warn().Err(err).Msg("Cannot enable tracking")
			writeError(w, http.StatusConflict, err.Error())
			return http.StatusConflict, "error"
		}
		writeSuccess(w)

	case ActionPing:
		st := s.tracker.Status()
		writeJSON(w, http.StatusOK, PingResponse{
			Pong:     true,
			Platform: st.Platform.String(),
			IsReady:  true,
		})

	default:
		logger.Warn().Msg("Unknown message action")
		writeError(w, http.StatusBadRequest, "Unknown action")
		return http.StatusBadRequest, "error"
	}
	return http.StatusOK, "ok"
}

// metricAction keeps the action label bounded.
func metricAction(action string) string {
	switch action {
	case ActionGetData, ActionGetTrackingStatus, ActionSetConsent, ActionResetConsent,
		ActionStopTracking, ActionEnableTracking, ActionPing:
		return action
	}
	return "unknown"
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fe.Field() + " failed " + fe.Tag() + " validation"
	}
	return "Invalid request"
}
