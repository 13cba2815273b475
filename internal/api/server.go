// Package api is the HTTP surface of the gateway: the /stream WebSocket
// mount, the health endpoint, and one-shot speech synthesis. No business
// logic lives here.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"omnigate/internal/collab"
)

// Registry exposes connection statistics to the health endpoint without
// coupling to the websocket package's concrete registry.
type Registry interface {
	Stats() map[string]int
}

// Server routes HTTP requests to the gateway's handlers.
type Server struct {
	registry Registry
	tts      *collab.TTSClient
	stream   http.Handler
	router   *http.ServeMux
}

func NewServer(registry Registry, tts *collab.TTSClient, stream http.Handler) *Server {
	s := &Server{
		registry: registry,
		tts:      tts,
		stream:   stream,
		router:   http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	if s.stream != nil {
		s.router.Handle("/stream", s.stream)
	}
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	s.router.Handle("/tts", s.corsMiddleware(http.HandlerFunc(s.textToSpeech)))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HealthResponse follows the contract the platform's service monitor
// scrapes from every service.
type HealthResponse struct {
	Status      string          `json:"status"`
	Service     string          `json:"service"`
	AIService   map[string]bool `json:"aiService"`
	Connections map[string]int  `json:"connections,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "OK",
		Service:   "omnigate",
		AIService: map[string]bool{"usingRealAPI": true},
	}
	if s.registry != nil {
		response.Connections = s.registry.Stats()
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// TTSRequest is the one-shot synthesis request body.
type TTSRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// textToSpeech proxies a single synthesis request to the TTS collaborator
// and streams the MP3 back.
func (s *Server) textToSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Content-Type", "application/json")
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		w.Header().Set("Content-Type", "application/json")
		s.sendError(w, "Text is required", http.StatusBadRequest)
		return
	}

	if s.tts == nil || !s.tts.Enabled() {
		w.Header().Set("Content-Type", "application/json")
		s.sendError(w, "Speech synthesis not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	audio, err := s.tts.Synthesize(ctx, req.Text, req.Voice)
	if err != nil {
		log.Printf("TTS synthesis failed: %v", err)
		w.Header().Set("Content-Type", "application/json")
		s.sendError(w, "TTS generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
