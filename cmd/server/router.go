package main

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/rs/cors"

	"github.com/pulseweave/companion/pkg/model"
	"github.com/pulseweave/companion/pkg/orchestrator"
)

type chatRequest struct {
	UserID         string       `json:"user_id"`
	Message        string       `json:"message"`
	ConversationID string       `json:"conversation_id,omitempty"`
	History        []model.Turn `json:"history,omitempty"`
}

func bootstrapRouter(logger *log.Logger, orch *orchestrator.Orchestrator) *chi.Mux {
	router := chi.NewRouter()
	router.Use(cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		Debug:            false,
	}).Handler)

	router.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(logger, w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if req.UserID == "" || req.Message == "" {
			writeJSON(logger, w, http.StatusBadRequest, map[string]string{"error": "user_id and message are required"})
			return
		}

		result := orch.Chat(r.Context(), req.UserID, req.Message, req.ConversationID, req.History)
		writeJSON(logger, w, http.StatusOK, result)
	})

	router.Post("/conversations/{id}/end", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := orch.EndConversation(r.Context(), id); err != nil {
			logger.Error("Failed to end conversation", "conversation_id", id, "error", err)
			writeJSON(logger, w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]string{"conversation_id": id, "status": "completed"})
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, http.StatusOK, map[string]any{
			"status":          "ok",
			"model_available": orch.IsAvailable(r.Context()),
		})
	})

	return router
}

func writeJSON(logger *log.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}
