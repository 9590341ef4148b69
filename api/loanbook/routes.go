// Package loanbook assembles the HTTP surface of the loan book service.
package loanbook

import (
	"net/http"

	"github.com/gorilla/mux"

	"TalkToDataLoanPro/api"
	"TalkToDataLoanPro/api/buckets"
	"TalkToDataLoanPro/api/constants"
	"TalkToDataLoanPro/api/datasets"
)

// Deps carries the handler dependencies for every route group.
type Deps struct {
	Datasets *datasets.Deps
	Buckets  *buckets.Deps
	// Health reports resource status; nil reports an empty set.
	Health func() map[string]string
}

func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/health", api.HealthHandler(d.Health)).Methods(http.MethodGet)
	if d.Datasets != nil {
		datasets.Register(router, d.Datasets)
	}
	if d.Buckets != nil {
		buckets.Register(router, d.Buckets)
	}
	router.NotFoundHandler = http.HandlerFunc(api.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.RespondWithError(w, http.StatusMethodNotAllowed, constants.ErrMethodNotAllowed)
	})
	return router
}
