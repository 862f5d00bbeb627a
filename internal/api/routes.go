package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up the /api routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Public
	r.Get("/health", s.HandleHealth)
	r.Get("/maintenance-status", s.HandleMaintenanceStatus)
	r.Get("/announcements/active", s.HandleActiveAnnouncements)
	r.Post("/client-portal/check-status", s.HandleCheckStatus)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/register-service", s.HandleRegisterService)
		r.With(s.authMiddleware).Get("/me", s.HandleMe)
	})

	// Tenant routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.requireTenant)

		// Buying a plan must stay possible for an expired tenant
		r.Post("/tenant/process-payment", s.HandleProcessPayment)

		r.Group(func(r chi.Router) {
			r.Use(s.subscriptionGate)

			r.Route("/tickets", func(r chi.Router) {
				r.Get("/", s.HandleListTickets)
				r.Post("/", s.HandleCreateTicket)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.HandleGetTicket)
					r.Put("/", s.HandleUpdateTicket)
					r.Delete("/", s.HandleDeleteTicket)
				})
			})

			r.Route("/tenant", func(r chi.Router) {
				r.Get("/info", s.HandleTenantInfo)
				r.Put("/info", s.HandleUpdateTenantInfo)

				r.Route("/custom-statuses", func(r chi.Router) {
					r.Get("/", s.HandleListStatuses)
					r.Post("/", s.HandleCreateStatus)
					r.Get("/grouped", s.HandleGroupedStatuses)
					r.Put("/{id}", s.HandleUpdateStatus)
					r.Delete("/{id}", s.HandleDeleteStatus)
				})

				r.Get("/clients", s.HandleListClients)
				r.Get("/clients/search", s.HandleSearchClients)

				r.Route("/locations", func(r chi.Router) {
					r.Get("/", s.HandleListLocations)
					r.Post("/", s.HandleCreateLocation)
					r.Put("/{id}", s.HandleUpdateLocation)
					r.Delete("/{id}", s.HandleDeleteLocation)
				})

				r.Route("/employees", func(r chi.Router) {
					r.Get("/", s.HandleListEmployees)
					r.Post("/", s.HandleCreateEmployee)
					r.Put("/{id}", s.HandleUpdateEmployee)
					r.Delete("/{id}", s.HandleDeleteEmployee)
				})

				r.Route("/roles", func(r chi.Router) {
					r.Get("/", s.HandleListRoles)
					r.Post("/", s.HandleCreateRole)
					r.Put("/{id}", s.HandleUpdateRole)
					r.Delete("/{id}", s.HandleDeleteRole)
				})

				r.Get("/subscription-status", s.HandleSubscriptionStatus)
				r.Get("/subscription-plans", s.HandleSubscriptionPlans)
				r.Get("/payment-history", s.HandlePaymentHistory)
			})

			r.Route("/ai", func(r chi.Router) {
				r.Get("/config", s.HandleGetAIConfig)
				r.Put("/config", s.HandleUpdateAIConfig)
				r.Post("/chat", s.HandleChat)
				r.Get("/conversations", s.HandleListConversations)
				r.Get("/conversations/{id}", s.HandleGetConversation)
				r.Delete("/conversations/{id}", s.HandleDeleteConversation)
				r.Post("/generate-message", s.HandleGenerateMessage)
				r.Get("/statistics", s.HandleTicketStatistics)
				r.Post("/analyze-statistics", s.HandleAnalyzeStatistics)
			})
		})
	})

	// Admin routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.requireAdmin)

		r.Get("/statistics", s.HandlePlatformStatistics)
		r.Get("/recent-activity", s.HandleRecentActivity)
		r.Get("/server-info", s.HandleServerInfo)

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", s.HandleAdminListTenants)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleAdminGetTenant)
				r.Post("/toggle-status", s.HandleToggleTenantStatus)
				r.Post("/extend-grace", s.HandleExtendGrace)
				r.Post("/change-plan", s.HandleChangeTenantPlan)
				r.Post("/reset-password", s.HandleResetTenantPassword)
				r.Put("/ai", s.HandleSetTenantAI)
				r.Get("/employees", s.HandleAdminListEmployees)
				r.Delete("/employees/{user_id}", s.HandleAdminDeleteEmployee)
			})
		})

		r.Get("/ai-config", s.HandleAdminAIConfig)
		r.Put("/ai-config", s.HandleAdminUpdateAIConfig)
		r.Get("/ai-statistics", s.HandleAIStatistics)

		r.Get("/logs", s.HandleListLogs)
		r.Get("/logs/stats", s.HandleLogStats)

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", s.HandleListBackups)
			r.Post("/", s.HandleCreateBackup)
			r.Get("/{id}/download", s.HandleDownloadBackup)
			r.Post("/{id}/restore", s.HandleRestoreBackup)
			r.Delete("/{id}", s.HandleDeleteBackup)
		})

		r.Route("/announcements", func(r chi.Router) {
			r.Get("/", s.HandleListAnnouncements)
			r.Post("/", s.HandleCreateAnnouncement)
			r.Put("/{id}", s.HandleUpdateAnnouncement)
			r.Delete("/{id}", s.HandleDeleteAnnouncement)
		})

		r.Route("/subscription-plans", func(r chi.Router) {
			r.Get("/", s.HandleListAllPlans)
			r.Post("/", s.HandleCreatePlan)
			r.Put("/{id}", s.HandleUpdatePlan)
			r.Delete("/{id}", s.HandleDeletePlan)
		})

		r.Get("/platform-settings", s.HandleGetPlatformSettings)
		r.Put("/platform-settings", s.HandleUpdatePlatformSettings)
	})
}
