package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fixgsm/fixgsm-server/internal/service"
)

// HandleGetAIConfig returns the tenant's assistant settings
func (s *RESTServer) HandleGetAIConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.GetAIConfig(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cfg)
}

// HandleUpdateAIConfig edits the tenant's assistant settings
func (s *RESTServer) HandleUpdateAIConfig(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateAIConfigRequest
	if !s.decode(w, r, &req) {
		return
	}
	cfg, err := s.svc.UpdateAIConfig(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cfg)
}

// HandleChat sends a message to the assistant
func (s *RESTServer) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req service.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Chat(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// HandleListConversations lists the caller's conversations
func (s *RESTServer) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.svc.ListConversations(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, convs)
}

// HandleGetConversation returns one conversation with its messages
func (s *RESTServer) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.svc.GetConversation(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, conv)
}

// HandleDeleteConversation deletes a conversation
func (s *RESTServer) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteConversation(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Conversația a fost ștearsă"})
}

// HandleGenerateMessage drafts a customer message for a ticket
func (s *RESTServer) HandleGenerateMessage(w http.ResponseWriter, r *http.Request) {
	var req service.GenerateMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.svc.GenerateMessage(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, msg)
}

// HandleTicketStatistics returns the aggregates the analysis is built on
func (s *RESTServer) HandleTicketStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.TicketStatistics(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// HandleAnalyzeStatistics asks the assistant to comment on ticket statistics
func (s *RESTServer) HandleAnalyzeStatistics(w http.ResponseWriter, r *http.Request) {
	var req service.AnalyzeStatisticsRequest
	if !s.decode(w, r, &req) {
		return
	}
	analysis, err := s.svc.AnalyzeStatistics(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, analysis)
}
