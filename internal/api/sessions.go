package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/goodtune/rollcall/internal/export"
	"github.com/goodtune/rollcall/internal/storage"
)

// SessionSummary is the list view of a stored session.
type SessionSummary struct {
	ID           string    `json:"sessionId"`
	Platform     string    `json:"platform"`
	URL          string    `json:"url"`
	StartTime    time.Time `json:"startTime"`
	LastUpdated  time.Time `json:"lastUpdated"`
	Participants int       `json:"participants"`
}

func summarize(s storage.Session, _ int) SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Platform:     s.Platform.String(),
		URL:          s.URL,
		StartTime:    s.Started(),
		LastUpdated:  s.LastUpdated,
		Participants: len(s.Participants),
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": lo.Map(sessions, summarize),
		"count":    len(sessions),
	})
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	n, err := s.sessions.Clear(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear sessions")
		writeError(w, http.StatusInternalServerError, "Failed to clear sessions")
		return
	}
	s.logger.Info().Int("deleted", n).Msg("Stored sessions cleared")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": n,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	now := s.config.Clock.Now()
	doc := export.Build(*session, now)

	w.Header().Set("Content-Type", "application/json")
	setAttachment(w, export.Filename(export.KindJSON, session.Platform.String(), now))
	if err := export.WriteJSON(w, doc); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to write JSON export")
	}
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	now := s.config.Clock.Now()
	doc := export.Build(*session, now)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	setAttachment(w, export.Filename(export.KindCSV, session.Platform.String(), now))
	if err := export.WriteCSV(w, doc, s.config.Location); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to write CSV export")
	}
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*storage.Session, bool) {
	id := mux.Vars(r)["id"]

	session, err := s.sessions.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return nil, false
		}
		s.logger.Error().Err(err).Str("session_id", id).Msg("Failed to load session")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve session")
		return nil, false
	}
	return session, true
}

func setAttachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
