package payments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alovak/fakepay/payments/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc := newTestService(t)
	r := chi.NewRouter()
	NewAPI(svc).AppendRoutes(r)
	return r, svc
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/payments/authorize", `{"amount":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var auth models.AuthorizationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	require.True(t, auth.Success)
	require.NotEmpty(t, auth.AuthToken)

	t.Run("get authorization", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/payments/authorizations/"+auth.AuthToken, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var record models.AuthorizationRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
		require.Equal(t, models.AuthorizationStatePending, record.State)
		require.Equal(t, int64(10), record.Amount)
	})

	t.Run("complete", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/payments/complete", `{"auth_token":"`+auth.AuthToken+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"success":true,"txid":"1"}`, rec.Body.String())
	})

	t.Run("complete again is declined", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/payments/complete", `{"auth_token":"`+auth.AuthToken+`"}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.JSONEq(t, `{"success":false,"fail_reason":"auth code invalid","fail_code":"INVALID_PARAMETER"}`, rec.Body.String())
	})

	t.Run("authorize over the ceiling", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/payments/authorize", `{"amount":150}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.JSONEq(t, `{"success":false,"fail_reason":"too much to pay","fail_code":"LIMIT_EXCEEDED"}`, rec.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/payments/authorize", `{"amount":"ten"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown authorization", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/payments/authorizations/nope", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("payment methods", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/payments/methods", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `[{"token":"alipay"}]`, rec.Body.String())
	})

	t.Run("expire pending", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/dev/authorizations/expire", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"expired":0}`, rec.Body.String())
	})
}
