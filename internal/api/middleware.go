package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/auth"
	"github.com/fixgsm/fixgsm-server/internal/service"
)

type actorKey struct{}

// authMiddleware validates the bearer token and stores the claims and the
// actor in the request context
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, apperr.Unauthorized("Autentificare necesară"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			s.respondError(w, apperr.Unauthorized("Header Authorization invalid"))
			return
		}

		claims, err := s.auth.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			s.respondError(w, apperr.Unauthorized("Sesiune invalidă sau expirată"))
			return
		}

		ctx := auth.WithClaims(r.Context(), claims)
		ctx = context.WithValue(ctx, actorKey{}, service.ActorFromClaims(claims, clientIP(r)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin checks on every request that the caller is a platform admin
// who still exists
func (s *RESTServer) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.AuthorizeAdmin(r.Context(), actorFrom(r)); err != nil {
			s.respondError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireTenant admits tenant users while the platform is not in
// maintenance
func (s *RESTServer) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorFrom(r).IsAdmin() {
			s.respondError(w, apperr.Forbidden("Rută disponibilă doar pentru utilizatorii unui service"))
			return
		}
		if err := s.svc.CheckMaintenance(r.Context()); err != nil {
			s.respondError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// subscriptionGate refuses mutations of suspended or expired tenants
func (s *RESTServer) subscriptionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if err := s.svc.CheckWritable(r.Context(), actorFrom(r)); err != nil {
				s.respondError(w, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// actorFrom returns the authenticated actor of the request
func actorFrom(r *http.Request) service.Actor {
	actor, _ := r.Context().Value(actorKey{}).(service.Actor)
	return actor
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
