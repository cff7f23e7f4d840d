package api

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler, auth *Authenticator, log logrus.FieldLogger) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(log))

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.Middleware)

	api.HandleFunc("/holdings", handler.GetHoldings).Methods("GET")
	api.HandleFunc("/holdings", handler.AddHolding).Methods("POST")
	api.HandleFunc("/transactions", handler.GetTransactions).Methods("GET")
	api.HandleFunc("/transactions/buy", handler.Buy).Methods("POST")
	api.HandleFunc("/portfolio", handler.GetPortfolio).Methods("GET")

	// Quotes
	api.HandleFunc("/prices", handler.GetPrices).Methods("GET")
	api.HandleFunc("/prices/{symbol}/history", handler.GetPriceHistory).Methods("GET")

	return r
}
