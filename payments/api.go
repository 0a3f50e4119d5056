package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/alovak/fakepay/payments/models"
	"github.com/go-chi/chi/v5"
)

// API is a HTTP API for the payment service
type API struct {
	payments *Service
}

func NewAPI(payments *Service) *API {
	return &API{
		payments: payments,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Post("/authorize", a.authorize)
		r.Post("/complete", a.complete)
		r.Get("/methods", a.getPaymentMethods)
		r.Get("/authorizations/{token}", a.getAuthorization)
	})
	r.Post("/dev/authorizations/expire", a.expirePending)
}

func (a *API) authorize(w http.ResponseWriter, r *http.Request) {
	req := models.AuthorizationRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := a.payments.Authorize(r.Context(), req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeResult(w, result.Success, result)
}

func (a *API) complete(w http.ResponseWriter, r *http.Request) {
	req := models.CompletionRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := a.payments.Complete(r.Context(), req.AuthToken)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeResult(w, result.Success, result)
}

func (a *API) getPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := a.payments.GetPaymentMethods(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(methods)
}

func (a *API) getAuthorization(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	record, err := a.payments.Authorization(r.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(record)
}

func (a *API) expirePending(w http.ResponseWriter, r *http.Request) {
	n, err := a.payments.ExpirePending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(fmt.Sprintf("{\"expired\":%d}", n)))
}

// writeResult renders a protocol result; declines use 422 with the same body shape.
func writeResult(w http.ResponseWriter, success bool, result any) {
	status := http.StatusOK
	if !success {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}
