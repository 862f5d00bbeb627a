package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fixgsm/fixgsm-server/internal/service"
)

// ========== Location handlers ==========

// HandleListLocations lists locations
func (s *RESTServer) HandleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.svc.ListLocations(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, locations)
}

// HandleCreateLocation creates a location
func (s *RESTServer) HandleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var req service.LocationRequest
	if !s.decode(w, r, &req) {
		return
	}
	location, err := s.svc.CreateLocation(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, location)
}

// HandleUpdateLocation updates a location
func (s *RESTServer) HandleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Locația")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req service.LocationRequest
	if !s.decode(w, r, &req) {
		return
	}
	location, err := s.svc.UpdateLocation(r.Context(), actorFrom(r), id, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, location)
}

// HandleDeleteLocation deletes a location
func (s *RESTServer) HandleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Locația")
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.svc.DeleteLocation(r.Context(), actorFrom(r), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Locația a fost ștearsă"})
}

// ========== Employee handlers ==========

// HandleListEmployees lists employees
func (s *RESTServer) HandleListEmployees(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.ListEmployees(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, users)
}

// HandleCreateEmployee creates an employee
func (s *RESTServer) HandleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req service.CreateEmployeeRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.svc.CreateEmployee(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, user)
}

// HandleUpdateEmployee updates an employee
func (s *RESTServer) HandleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Angajatul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req service.UpdateEmployeeRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.svc.UpdateEmployee(r.Context(), actorFrom(r), id, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

// HandleDeleteEmployee deletes an employee
func (s *RESTServer) HandleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Angajatul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.svc.DeleteEmployee(r.Context(), actorFrom(r), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Angajatul a fost șters"})
}

// ========== Role handlers ==========

// HandleListRoles lists system and custom roles
func (s *RESTServer) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.svc.ListRoles(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, roles)
}

// HandleCreateRole creates a custom role
func (s *RESTServer) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req service.RoleRequest
	if !s.decode(w, r, &req) {
		return
	}
	role, err := s.svc.CreateRole(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, role)
}

// HandleUpdateRole renames a custom role or changes its permissions
func (s *RESTServer) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := service.RoleID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req service.RoleRequest
	if !s.decode(w, r, &req) {
		return
	}
	role, err := s.svc.UpdateRole(r.Context(), actorFrom(r), id, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, role)
}

// HandleDeleteRole deletes an unused custom role
func (s *RESTServer) HandleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := service.RoleID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.svc.DeleteRole(r.Context(), actorFrom(r), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Rolul a fost șters"})
}

// ========== Subscription handlers ==========

// HandleSubscriptionStatus reports the effective subscription state
func (s *RESTServer) HandleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.GetSubscriptionStatus(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// HandleSubscriptionPlans lists the plans a tenant can buy
func (s *RESTServer) HandleSubscriptionPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.svc.ListSubscriptionPlans(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, plans)
}

// HandlePaymentHistory lists the tenant's payments
func (s *RESTServer) HandlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	payments, err := s.svc.PaymentHistory(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, payments)
}

// HandleProcessPayment buys or renews a plan
func (s *RESTServer) HandleProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req service.ProcessPaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := s.svc.ProcessPayment(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// HandleTenantInfo returns the service profile
func (s *RESTServer) HandleTenantInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.GetTenantInfo(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

// HandleUpdateTenantInfo edits the service profile
func (s *RESTServer) HandleUpdateTenantInfo(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateTenantInfoRequest
	if !s.decode(w, r, &req) {
		return
	}
	info, err := s.svc.UpdateTenantInfo(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}
