package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/service"
)

// ========== Overview ==========

// HandlePlatformStatistics returns platform-wide counters
func (s *RESTServer) HandlePlatformStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetPlatformStatistics(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// HandleRecentActivity returns the newest activity entries
func (s *RESTServer) HandleRecentActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.RecentActivity(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

// HandleServerInfo describes the running process
func (s *RESTServer) HandleServerInfo(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.GetServerInfo())
}

// ========== Tenants ==========

// HandleAdminListTenants lists tenants with their subscription state
func (s *RESTServer) HandleAdminListTenants(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.ListTenants(r.Context(), queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

// tenantID reads the {id} path parameter of the tenant routes
func tenantID(r *http.Request) (uuid.UUID, error) {
	return pathID(r, "id", "Service-ul")
}

// HandleAdminGetTenant returns one tenant with usage counters
func (s *RESTServer) HandleAdminGetTenant(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	detail, err := s.svc.GetTenantDetail(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

// HandleToggleTenantStatus suspends or reactivates a tenant
func (s *RESTServer) HandleToggleTenantStatus(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	tenant, err := s.svc.ToggleTenantStatus(r.Context(), actorFrom(r), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tenant)
}

// HandleExtendGrace adds free days to a subscription
func (s *RESTServer) HandleExtendGrace(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req service.ExtendGraceRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := s.svc.ExtendGrace(r.Context(), actorFrom(r), id, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// HandleChangeTenantPlan moves a tenant onto another plan
func (s *RESTServer) HandleChangeTenantPlan(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req service.ChangePlanRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := s.svc.ChangeTenantPlan(r.Context(), actorFrom(r), id, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// HandleResetTenantPassword sets a new owner password
func (s *RESTServer) HandleResetTenantPassword(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	reset, err := s.svc.ResetTenantPassword(r.Context(), actorFrom(r), id, req.NewPassword)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, reset)
}

// HandleSetTenantAI toggles the assistant for a tenant
func (s *RESTServer) HandleSetTenantAI(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req struct {
		AIEnabled *bool `json:"ai_enabled"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.AIEnabled == nil {
		s.respondError(w, apperr.Validation("ai_enabled este obligatoriu"))
		return
	}
	tenant, err := s.svc.SetTenantAI(r.Context(), actorFrom(r), id, *req.AIEnabled)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tenant)
}

// HandleAdminListEmployees lists a tenant's users
func (s *RESTServer) HandleAdminListEmployees(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	users, err := s.svc.ListTenantEmployees(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, users)
}

// HandleAdminDeleteEmployee removes a tenant's employee
func (s *RESTServer) HandleAdminDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	userID, err := pathID(r, "user_id", "Angajatul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.svc.DeleteTenantEmployee(r.Context(), actorFrom(r), id, userID); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Angajatul a fost șters"})
}

// ========== AI ==========

// adminAIConfig is the platform view of the assistant provider
type adminAIConfig struct {
	GloballyEnabled bool   `json:"ai_globally_enabled"`
	ProviderReady   bool   `json:"provider_configured"`
	Model           string `json:"model"`
	BaseURL         string `json:"base_url,omitempty"`
}

func (s *RESTServer) aiConfigView(settings *models.PlatformSettings) adminAIConfig {
	return adminAIConfig{
		GloballyEnabled: settings.AIGloballyEnabled,
		ProviderReady:   s.config.AI.BaseURL != "",
		Model:           s.config.AI.Model,
		BaseURL:         s.config.AI.BaseURL,
	}
}

// HandleAdminAIConfig returns the platform assistant settings
func (s *RESTServer) HandleAdminAIConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.GetPlatformSettings(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.aiConfigView(settings))
}

// HandleAdminUpdateAIConfig turns the assistant on or off platform-wide
func (s *RESTServer) HandleAdminUpdateAIConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GloballyEnabled *bool `json:"ai_globally_enabled"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	settings, err := s.svc.UpdatePlatformSettings(r.Context(), actorFrom(r), service.UpdatePlatformSettingsRequest{
		AIGloballyEnabled: req.GloballyEnabled,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.aiConfigView(settings))
}

// HandleAIStatistics returns assistant usage counters
func (s *RESTServer) HandleAIStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetAIStatistics(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// ========== Logs ==========

// HandleListLogs lists log entries matching the query filters
func (s *RESTServer) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.LogFilter{
		Type:     models.LogType(q.Get("log_type")),
		Level:    models.LogLevel(q.Get("level")),
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}
	if raw := q.Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, apperr.Validation("tenant_id invalid"))
			return
		}
		filter.TenantID = &id
	}
	for name, dst := range map[string]**time.Time{"start_time": &filter.StartTime, "end_time": &filter.EndTime} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, apperr.Validation("%s trebuie să fie în format RFC3339", name))
			return
		}
		*dst = &t
	}

	page, err := s.svc.ListLogs(r.Context(), filter, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

// HandleLogStats aggregates the last day of logs
func (s *RESTServer) HandleLogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.LogStats(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// ========== Backups ==========

// HandleListBackups lists archives, newest first
func (s *RESTServer) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := s.svc.ListBackups(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, backups)
}

// HandleCreateBackup writes a new archive
func (s *RESTServer) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	backup, err := s.svc.CreateBackup(r.Context(), actorFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, backup)
}

// HandleDownloadBackup streams an archive
func (s *RESTServer) HandleDownloadBackup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Backup-ul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	rc, backup, err := s.svc.OpenBackup(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn().Err(err).Str("backup_id", id.String()).Msg("Backup download interrupted")
	}
}

// HandleRestoreBackup replaces the platform data with an archive
func (s *RESTServer) HandleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Backup-ul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req service.RestoreBackupRequest
	if !s.decode(w, r, &req) {
		return
	}
	backup, err := s.svc.RestoreBackup(r.Context(), actorFrom(r), id, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Datele au fost restaurate",
		"backup":  backup,
	})
}

// HandleDeleteBackup removes an archive
func (s *RESTServer) HandleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Backup-ul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.svc.DeleteBackup(r.Context(), actorFrom(r), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Backup-ul a fost șters"})
}

// ========== Announcements ==========

// HandleListAnnouncements lists every announcement
func (s *RESTServer) HandleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.ListAnnouncements(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

// HandleCreateAnnouncement publishes an announcement
func (s *RESTServer) HandleCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req service.AnnouncementRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.svc.CreateAnnouncement(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, a)
}

// HandleUpdateAnnouncement edits an announcement
func (s *RESTServer) HandleUpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Anunțul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req service.AnnouncementRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.svc.UpdateAnnouncement(r.Context(), actorFrom(r), id, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, a)
}

// HandleDeleteAnnouncement removes an announcement
func (s *RESTServer) HandleDeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Anunțul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.svc.DeleteAnnouncement(r.Context(), actorFrom(r), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Anunțul a fost șters"})
}

// ========== Plans ==========

// HandleListAllPlans lists every plan, inactive ones included
func (s *RESTServer) HandleListAllPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.svc.ListAllPlans(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, plans)
}

// HandleCreatePlan adds a plan to the catalog
func (s *RESTServer) HandleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req service.PlanRequest
	if !s.decode(w, r, &req) {
		return
	}
	plan, err := s.svc.CreatePlan(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, plan)
}

// HandleUpdatePlan edits a plan
func (s *RESTServer) HandleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Planul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	var req service.PlanRequest
	if !s.decode(w, r, &req) {
		return
	}
	plan, err := s.svc.UpdatePlan(r.Context(), actorFrom(r), id, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, plan)
}

// HandleDeletePlan removes an unused plan
func (s *RESTServer) HandleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "Planul")
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.svc.DeletePlan(r.Context(), actorFrom(r), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Planul a fost șters"})
}

// ========== Platform settings ==========

// HandleGetPlatformSettings returns the platform switches
func (s *RESTServer) HandleGetPlatformSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.GetPlatformSettings(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, settings)
}

// HandleUpdatePlatformSettings changes the platform switches
func (s *RESTServer) HandleUpdatePlatformSettings(w http.ResponseWriter, r *http.Request) {
	var req service.UpdatePlatformSettingsRequest
	if !s.decode(w, r, &req) {
		return
	}
	settings, err := s.svc.UpdatePlatformSettings(r.Context(), actorFrom(r), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, settings)
}
