package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adarcie/CustomSmartThermostat/internal/card"
	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/panel"
	"github.com/adarcie/CustomSmartThermostat/internal/sender"
)

type Server struct {
	panel      *panel.Panel
	metrics    http.Handler
	httpServer *http.Server
}

type LocalRequest struct {
	// Value is either a number or the raw text typed into the field.
	Value json.RawMessage `json:"value"`
}

// localText returns the typed text of a value, unquoting JSON strings.
func (req LocalRequest) localText() string {
	var str string
	if err := json.Unmarshal(req.Value, &str); err == nil {
		return str
	}
	return string(req.Value)
}

type SubmitResponse struct {
	Card   card.View `json:"card"`
	Result string    `json:"result,omitempty"`
	Error  string    `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the panel surface. metrics may be nil, in which case
// /metrics is not served.
func NewServer(p *panel.Panel, metrics http.Handler) *Server {
	return &Server{
		panel:   p,
		metrics: metrics,
	}
}

// Handler returns the full route table wrapped in CORS and request-id
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/cards", s.handleCards)
	mux.HandleFunc("/api/cards/", s.handleCardOperations)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		log.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("API request")

		mux.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("address", addr).Msg("Starting panel API server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.panel.Views())
}

func (s *Server) handleCardOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/cards/")
	parts := strings.Split(path, "/")

	if parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Card ID required")
		return
	}
	cardID := parts[0]

	switch {
	case len(parts) == 1:
		// /api/cards/{id}
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.respondView(w, cardID)(s.panel.View(cardID))

	case len(parts) == 2:
		operation := parts[1]
		switch operation {
		case "local":
			if r.Method != http.MethodPut {
				s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			s.setLocal(w, r, cardID)
		case "increment", "decrement":
			if r.Method != http.MethodPost {
				s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			dir := card.Increment
			if operation == "decrement" {
				dir = card.Decrement
			}
			s.respondView(w, cardID)(s.panel.Nudge(cardID, dir))
		case "submit":
			if r.Method != http.MethodPost {
				s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			s.submit(w, r, cardID)
		case "settings":
			if r.Method != http.MethodPut {
				s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			s.updateSettings(w, r, cardID)
		default:
			s.writeError(w, http.StatusNotFound, "Unknown operation")
		}

	case len(parts) == 3 && parts[1] == "presets" && parts[2] != "":
		// /api/cards/{id}/presets/{name}
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.respondView(w, cardID)(s.panel.SelectPreset(cardID, parts[2]))

	default:
		s.writeError(w, http.StatusNotFound, "Invalid path")
	}
}

// respondView writes the view, or 404 when the card does not exist.
func (s *Server) respondView(w http.ResponseWriter, cardID string) func(card.View, error) {
	return func(v card.View, err error) {
		if err != nil {
			if errors.Is(err, panel.ErrUnknownCard) {
				s.writeError(w, http.StatusNotFound, "Card not found")
				return
			}
			log.Error().Err(err).Str("card_id", cardID).Msg("Card operation failed")
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, v)
	}
}

// setLocal treats a non-numeric value the same as typing garbage into the
// field: the local value is left alone and the current view returned.
func (s *Server) setLocal(w http.ResponseWriter, r *http.Request, cardID string) {
	var req LocalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	s.respondView(w, cardID)(s.panel.TypeLocal(cardID, req.localText()))
}

// submit starts a send and returns the Pending view immediately. With
// ?wait=true it waits for the transport before responding. A body carrying
// {"value": ...} is applied as typed input first, so the value on screen is
// the one sent.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, cardID string) {
	var req LocalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if len(req.Value) > 0 {
		if _, err := s.panel.TypeLocal(cardID, req.localText()); err != nil {
			s.respondView(w, cardID)(card.View{}, err)
			return
		}
	}

	v, done, err := s.panel.Submit(r.Context(), cardID)
	if err != nil {
		s.respondView(w, cardID)(v, err)
		return
	}

	resp := SubmitResponse{Card: v}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		s.writeJSON(w, http.StatusAccepted, resp)
		return
	}

	select {
	case o := <-done:
		resp.Result = string(o.Result)
		if o.Err != nil {
			resp.Error = o.Err.Error()
		}
		resp.Card, _ = s.panel.View(cardID)
	case <-r.Context().Done():
		return
	}

	status := http.StatusOK
	if resp.Result == string(sender.ResultFailed) {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, resp)
}

// updateSettings publishes a settings change such as
// {"presets": {"Home": 21.5}}. Only known values are sent.
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request, cardID string) {
	var settings model.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	v, err := s.panel.UpdateSettings(r.Context(), cardID, settings)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, v)
	case errors.Is(err, panel.ErrUnknownCard):
		s.writeError(w, http.StatusNotFound, "Card not found")
	case errors.Is(err, panel.ErrSettingsUnsupported):
		s.writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, model.ErrIncompleteSettings):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderIndex(w, s.panel.Views()); err != nil {
		log.Error().Err(err).Msg("Failed to render panel page")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
