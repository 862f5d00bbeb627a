package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/auth"
	"github.com/fixgsm/fixgsm-server/internal/service"
)

const maxBodyBytes = 1 << 20

// ========== Auth handlers ==========

// HandleLogin handles admin and tenant user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Login(r.Context(), req, clientIP(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// HandleRegisterService onboards a new repair shop
func (s *RESTServer) HandleRegisterService(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterServiceRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.RegisterService(r.Context(), req, clientIP(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

// HandleMe returns the claims of the current session
func (s *RESTServer) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":   claims.UserID,
		"tenant_id": claims.TenantID,
		"user_type": claims.UserType,
		"role":      claims.Role,
		"name":      claims.Name,
		"email":     claims.Email,
	})
}

// ========== Public handlers ==========

// HandleHealth reports liveness
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
	})
}

// HandleMaintenanceStatus reports the maintenance flag
func (s *RESTServer) HandleMaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.GetMaintenanceStatus(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// HandleActiveAnnouncements lists the banners visible now
func (s *RESTServer) HandleActiveAnnouncements(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ActiveAnnouncements(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

// HandleCheckStatus is the client portal lookup
func (s *RESTServer) HandleCheckStatus(w http.ResponseWriter, r *http.Request) {
	var req service.CheckStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := s.svc.CheckStatus(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// ========== Helper functions ==========

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError writes {"detail", "code"} with the status of the error kind
func (s *RESTServer) respondError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		log.Error().Err(e.Err).Msg("Request failed")
	}
	s.respondJSON(w, e.HTTPStatus(), map[string]string{
		"detail": e.Detail,
		"code":   string(e.Kind),
	})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (s *RESTServer) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, apperr.Validation("Corp de cerere JSON invalid"))
		return false
	}
	return true
}

// pathID parses a uuid path parameter
func pathID(r *http.Request, name, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.NotFound(what)
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back to def
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
