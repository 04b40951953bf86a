package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/concertbot/server/internal/agent/model"
	errx "github.com/concertbot/server/internal/core/error"
	"github.com/concertbot/server/internal/geo"
	logx "github.com/concertbot/server/pkg/logger"
)

const maxBodyBytes = 16 << 10

var errBadBody = errx.New(errors.New("bad request body"), http.StatusBadRequest, "invalid JSON body")

// locationRequest carries optional browser coordinates; both must be set
// for them to be used.
type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (l locationRequest) coordinates() *geo.Coordinates {
	if l.Latitude == nil || l.Longitude == nil {
		return nil
	}
	return &geo.Coordinates{Latitude: *l.Latitude, Longitude: *l.Longitude}
}

type messageRequest struct {
	Text string `json:"text"`
}

type sessionResponse struct {
	Session *model.Session `json:"session"`
	Reply   *model.Reply   `json:"reply,omitempty"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req locationRequest
		if err := decodeOptional(r, &req); err != nil {
			writeError(w, err)
			return
		}
		session, reply, err := s.agent.StartSession(r.Context(), req.coordinates())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse{Session: session, Reply: reply})
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.agent.Session(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func (s *Server) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.agent.EndSession(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleUpdateLocation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req locationRequest
		if err := decodeOptional(r, &req); err != nil {
			writeError(w, err)
			return
		}
		session, reply, err := s.agent.UpdateLocation(r.Context(), chi.URLParam(r, "id"), req.coordinates())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Session: session, Reply: reply})
	}
}

func (s *Server) handlePostMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, errBadBody)
			return
		}
		reply, err := s.agent.HandleMessage(r.Context(), chi.URLParam(r, "id"), req.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.agent.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) handlePending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		replies, err := s.agent.Pending(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, replies)
	}
}

// decodeOptional decodes a JSON body into v; an empty body leaves v as is.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errBadBody
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": errx.MessageOf(err)})
}
