// Package api maps the HTTP surface onto the chat service.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lfarias/groqchat/internal/chat"
	"github.com/lfarias/groqchat/internal/groq"
	"github.com/lfarias/groqchat/internal/prompt"
	"github.com/lfarias/groqchat/internal/store"
)

type Server struct {
	svc *chat.Service
}

func NewRouter(svc *chat.Service) http.Handler {
	s := &Server{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/chat", func(r chi.Router) {
		r.Post("/send", s.handleSend)
		r.Post("/session", s.handleSession)
		r.Post("/clear", s.handleClear)
		r.Get("/models", s.handleModels)
		r.Get("/personas", s.handlePersonas)
	})

	r.Get("/users/{userID}/sessions", s.handleUserSessions)

	return r
}

type sendRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"session_id"`
	Model      string `json:"model,omitempty"`
	Persona    string `json:"persona,omitempty"`
	WindowSize *int   `json:"window_size,omitempty"`
	UserID     string `json:"user_id"`
}

type sendResponse struct {
	Reply        string `json:"reply"`
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
}

type sessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id"`
}

type historyEntry struct {
	Human     string    `json:"human"`
	AI        string    `json:"ai"`
	Timestamp time.Time `json:"timestamp"`
}

type sessionResponse struct {
	SessionID    string         `json:"session_id"`
	History      []historyEntry `json:"history"`
	MessageCount int            `json:"message_count"`
	StartTime    time.Time      `json:"start_time"`
}

type clearRequest struct {
	SessionID string `json:"session_id"`
}

type userSession struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"start_time"`
	MessageCount int       `json:"message_count"`
}

type userSessionsResponse struct {
	Sessions []userSession `json:"sessions"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	// Absent window_size means the default; an explicit 0 means no prior turns.
	windowSize := chat.DefaultWindowSize
	if req.WindowSize != nil {
		windowSize = *req.WindowSize
	}

	out, err := s.svc.Send(r.Context(), chat.SendInput{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Message:    req.Message,
		Model:      req.Model,
		Persona:    req.Persona,
		WindowSize: windowSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{
		Reply:        out.Reply,
		SessionID:    out.SessionID,
		MessageCount: out.MessageCount,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	out, err := s.svc.Session(r.Context(), chat.SessionInput{
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	history := make([]historyEntry, 0, len(out.History))
	for _, m := range out.History {
		history = append(history, historyEntry{Human: m.Human, AI: m.AI, Timestamp: m.Timestamp})
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:    out.SessionID,
		History:      history,
		MessageCount: out.MessageCount,
		StartTime:    out.StartTime,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if err := s.svc.Clear(r.Context(), req.SessionID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "session cleared"})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"models": groq.Models()})
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"personas": prompt.Personas()})
}

func (s *Server) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	summaries, err := s.svc.UserSessions(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	sessions := make([]userSession, 0, len(summaries))
	for _, sum := range summaries {
		sessions = append(sessions, userSession{
			SessionID:    sum.ID,
			Title:        sum.Title,
			StartTime:    sum.StartTime,
			MessageCount: sum.MessageCount,
		})
	}

	writeJSON(w, http.StatusOK, userSessionsResponse{Sessions: sessions})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrSessionOwned) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "session id already in use"})
		return
	}

	switch chat.KindOf(err) {
	case chat.KindValidation:
		var cerr *chat.Error
		errors.As(err, &cerr)
		badRequest(w, cerr.Err.Error())
	case chat.KindProvider:
		log.Printf("api: provider error: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "completion provider unavailable"})
	default:
		log.Printf("api: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
