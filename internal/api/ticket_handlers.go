package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fixgsm/fixgsm-server/internal/service"
)

// ========== Ticket handlers ==========

// HandleListTickets lists tickets, newest first. The unpaged total is sent
// in X-Total-Count.
func (s *RESTServer) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := q.Get("search")
	if search == "" {
		search = q.Get("query")
	}
	tickets, total, err := s.svc.ListTickets(r.Context(), actorFrom(r), service.TicketQuery{
		LocationID: q.Get("location_id"),
		Status:     q.Get("status"),
		Search:     search,
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	s.respondJSON(w, http.StatusOK, tickets)
}

// HandleCreateTicket creates a ticket
func (s *RESTServer) HandleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTicketRequest
	if !s.decode(w, r, &req) {
		return
	}
	ticket, err := s.svc.CreateTicket(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, ticket)
}

// HandleGetTicket gets a ticket
func (s *RESTServer) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.svc.GetTicket(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ticket)
}

// HandleUpdateTicket applies a partial update
func (s *RESTServer) HandleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateTicketRequest
	if !s.decode(w, r, &req) {
		return
	}
	ticket, err := s.svc.UpdateTicket(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ticket)
}

// HandleDeleteTicket deletes a ticket
func (s *RESTServer) HandleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTicket(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Fișa a fost ștearsă"})
}

// ========== Status handlers ==========

// HandleListStatuses lists the tenant's status catalog
func (s *RESTServer) HandleListStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.svc.ListStatuses(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"statuses": statuses})
}

// HandleGroupedStatuses lists the catalog grouped by category
func (s *RESTServer) HandleGroupedStatuses(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.GroupedStatuses(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, groups)
}

// HandleCreateStatus adds a status
func (s *RESTServer) HandleCreateStatus(w http.ResponseWriter, r *http.Request) {
	var req service.CreateStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := s.svc.CreateStatus(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, status)
}

// HandleUpdateStatus edits a status
func (s *RESTServer) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Statusul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req service.UpdateStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := s.svc.UpdateStatus(r.Context(), actorFrom(r), id, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// HandleDeleteStatus removes a status
func (s *RESTServer) HandleDeleteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Statusul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.svc.DeleteStatus(r.Context(), actorFrom(r), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Statusul a fost șters"})
}

// ========== Client handlers ==========

// HandleListClients lists the client directory
func (s *RESTServer) HandleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.svc.ListClients(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, clients)
}

// HandleSearchClients searches clients by name or phone
func (s *RESTServer) HandleSearchClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.svc.SearchClients(r.Context(), actorFrom(r), r.URL.Query().Get("query"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, clients)
}
