package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alovak/fakepay/payments/models"
	"github.com/go-chi/chi/v5"
)

type API struct {
	orchestrator *Orchestrator
}

func NewAPI(orchestrator *Orchestrator) *API {
	return &API{
		orchestrator: orchestrator,
	}
}

type Request struct {
	Amount int64 `json:"amount"`
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Get("/checkout", a.checkoutByQuery)
	r.Post("/checkout", a.checkout)
}

func (a *API) checkoutByQuery(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(r.URL.Query().Get("count"), 10, 64)
	if err != nil {
		http.Error(w, "parse count err", http.StatusBadRequest)
		return
	}
	a.run(w, r, amount)
}

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	req := Request{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.run(w, r, req.Amount)
}

func (a *API) run(w http.ResponseWriter, r *http.Request, amount int64) {
	txid, err := a.orchestrator.Checkout(r.Context(), amount)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "success paid txid %s", txid)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrPartialCheckout):
		return http.StatusBadGateway
	case errors.Is(err, ErrAuthorizationFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
