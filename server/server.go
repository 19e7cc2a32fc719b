// Package server exposes the document and chat API over HTTP and a
// websocket chat endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NathanLabbe/local-rag/internal/app"
	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/pkg/rag"
)

const maxUploadBytes = 32 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI is served from other local origins
	},
}

// Message is a websocket frame in either direction.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// ChatRequest is the body of POST /api/chat and of "chat" websocket frames.
// UseLLM defaults to true.
type ChatRequest struct {
	Query         string            `json:"query"`
	History       []models.ChatTurn `json:"history"`
	UseLLM        *bool             `json:"use_llm"`
	SkipRetrieval bool              `json:"skip_retrieval"`
}

func (r ChatRequest) answerRequest() rag.AnswerRequest {
	useLLM := true
	if r.UseLLM != nil {
		useLLM = *r.UseLLM
	}
	return rag.AnswerRequest{
		Query:         r.Query,
		History:       r.History,
		UseLLM:        useLLM,
		SkipRetrieval: r.SkipRetrieval,
	}
}

type WebRequest struct {
	URL      string `json:"url"`
	MaxDepth *int   `json:"max_depth"`
}

type DriveRequest struct {
	FolderID string `json:"folder_id"`
}

type Server struct {
	app *app.App
	mux *http.ServeMux
}

func New(a *app.App) *Server {
	s := &Server{app: a, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	s.mux.HandleFunc("POST /api/documents/upload", s.handleUpload)
	s.mux.HandleFunc("POST /api/documents/web", s.handleWeb)
	s.mux.HandleFunc("POST /api/documents/drive", s.handleDrive)
	s.mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	return s
}

func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then drains open requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.app.Pipeline.ListDocuments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: multipart field \"file\" is required: %w", models.ErrInvalidInput, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("%w: read upload: %w", models.ErrInvalidInput, err))
		return
	}

	doc, err := s.app.IngestUpload(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleWeb(w http.ResponseWriter, r *http.Request) {
	var req WebRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, fmt.Errorf("%w: url is required", models.ErrInvalidInput))
		return
	}
	depth := -1
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}

	docs, err := s.app.IngestWeb(r.Context(), req.URL, depth, nil)
	writeIngested(w, docs, err)
}

func (s *Server) handleDrive(w http.ResponseWriter, r *http.Request) {
	var req DriveRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	docs, err := s.app.IngestDrive(r.Context(), req.FolderID, nil)
	writeIngested(w, docs, err)
}

// writeIngested reports partial success as 200 with the documents that made
// it; the error only decides the status when nothing was ingested.
func writeIngested(w http.ResponseWriter, docs []models.Document, err error) {
	if err != nil && len(docs) == 0 {
		writeError(w, err)
		return
	}
	if err != nil {
		logger.Warn("partial ingest: %v", err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.app.Pipeline.DeleteDocument(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"message":        "Document deleted",
		"chunks_deleted": n,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	answer, err := s.app.Synthesizer.Answer(r.Context(), req.answerRequest())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Synthesizer.Settings().Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req rag.SettingsSnapshot
	if !decodeJSON(w, r, &req) {
		return
	}
	updated := s.app.Synthesizer.Settings().Update(req)
	logger.Info("settings updated: model %s", updated.Model)
	writeJSON(w, http.StatusOK, updated)
}

// inbound is a websocket frame from the client: "chat" frames carry a
// ChatRequest, "ingest" frames carry a URL in Content.
type inbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ChatRequest
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Frames without their own history continue this connection's conversation.
	var history []models.ChatTurn
	ctx := r.Context()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read: %v", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(conn, Message{Type: "error", Content: "invalid message: " + err.Error()})
			continue
		}

		switch msg.Type {
		case "chat", "":
			req := msg.ChatRequest
			if req.Query == "" {
				req.Query = msg.Content
			}
			ownHistory := req.History != nil
			if !ownHistory {
				req.History = history
			}

			answer, err := s.app.Synthesizer.Answer(ctx, req.answerRequest())
			if err != nil {
				s.sendMessage(conn, Message{Type: "error", Content: err.Error()})
				continue
			}
			if !ownHistory {
				history = append(history,
					models.ChatTurn{Role: models.RoleUser, Content: req.Query},
					models.ChatTurn{Role: models.RoleAssistant, Content: answer.Text})
			}
			s.sendMessage(conn, Message{Type: "response", Content: answer.Text, Data: answer.Sources})

		case "ingest":
			s.sendMessage(conn, Message{Type: "status", Content: "Processing URL: " + msg.Content})
			docs, err := s.app.IngestWeb(ctx, msg.Content, -1, func(done, total int) {
				s.sendMessage(conn, Message{Type: "progress", Content: fmt.Sprintf("Ingested %d/%d pages", done, total)})
			})
			if err != nil && len(docs) == 0 {
				s.sendMessage(conn, Message{Type: "error", Content: err.Error()})
				continue
			}
			s.sendMessage(conn, Message{Type: "status", Content: fmt.Sprintf("Ingested %d documents", len(docs)), Data: docs})

		default:
			s.sendMessage(conn, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		logger.Debug("websocket write: %v", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body: %w", models.ErrInvalidInput, err))
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case app.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmbeddingUnavailable), errors.Is(err, models.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrIngestionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response: %v", err)
	}
}
