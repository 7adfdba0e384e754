/**
 * @description
 * This file sets up the HTTP router for the donation-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang: Exposes the /metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PaymentRoutes creates and returns a new router for the donation service.
func PaymentRoutes(h *PaymentHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Mobile-money flows block on gateway polling (up to interval * attempts),
	// so the timeout has to outlast a full polling window.
	r.Use(middleware.Timeout(120 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Public payment endpoints, driven by the frontend payment modal.
	r.Post("/payments/mobile-money", h.MobileMoneyPaymentHandler)
	r.Post("/payments/wallet/complete", h.WalletCompleteHandler)
	r.Post("/payments/wallet/failure", h.WalletFailureHandler)
	r.Get("/payments/allocation", h.AllocationPreviewHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		// Apply JWT authentication middleware for the admin listings
		r.Use(AdminAuthMiddleware(jwksURL))

		r.Get("/payments", h.ListPaymentsHandler)
		r.Get("/contributions", h.ListContributionsHandler)
		r.Get("/members", h.ListMembersHandler)
	})

	return r
}
