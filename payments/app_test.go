package payments

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/alovak/fakepay/internal/expiry"
	"github.com/alovak/fakepay/payments/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func startApp(t *testing.T, binding string) *App {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.ISO8583Addr = "127.0.0.1:0"
	cfg.CheckoutBinding = binding

	app := NewApp(slog.New(slog.NewTextHandler(os.Stderr, nil)), cfg)
	require.NoError(t, app.Start())
	t.Cleanup(app.Shutdown)
	return app
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAppCheckout(t *testing.T) {
	for _, binding := range []string{BindingInProcess, BindingHTTP, BindingISO8583} {
		t.Run(binding, func(t *testing.T) {
			app := startApp(t, binding)
			base := "http://" + app.Addr

			status, body := get(t, base+"/checkout?count=10")
			require.Equal(t, http.StatusOK, status)
			require.Equal(t, "success paid txid 1", body)

			status, body = get(t, base+"/checkout?count=2")
			require.Equal(t, http.StatusOK, status)
			require.Equal(t, "success paid txid 2", body)

			status, body = get(t, base+"/checkout?count=150")
			require.Equal(t, http.StatusPaymentRequired, status)
			require.Contains(t, body, "too much to pay")

			status, body = get(t, base+"/checkout?count=ten")
			require.Equal(t, http.StatusBadRequest, status)
			require.Contains(t, body, "parse count err")
		})
	}
}

func TestAppPaymentsAPI(t *testing.T) {
	app := startApp(t, BindingInProcess)
	base := "http://" + app.Addr

	body, err := json.Marshal(models.AuthorizationRequest{Amount: 10})
	require.NoError(t, err)
	resp, err := http.Post(base+"/payments/authorize", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var auth models.AuthorizationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&auth))
	require.True(t, auth.Success)
}

func TestAppOperationalEndpoints(t *testing.T) {
	app := startApp(t, BindingInProcess)
	base := "http://" + app.Addr

	status, _ := get(t, base+"/-/live")
	require.Equal(t, http.StatusOK, status)

	status, _ = get(t, base+"/-/ready")
	require.Equal(t, http.StatusOK, status)

	get(t, base+"/checkout?count=1")
	status, body := get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "checkout_total")
	require.Contains(t, body, "payments_authorizations_total")
}

func TestAppRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "cassandra"

	app := NewApp(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	require.ErrorContains(t, app.Start(), "unsupported REPO_BACKEND")
}

func TestAppStartFailureReleasesListeners(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := DefaultConfig()
	cfg.HTTPAddr = taken.Addr().String()
	cfg.ISO8583Addr = "127.0.0.1:0"

	app := NewApp(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	require.ErrorContains(t, app.Start(), "listening tcp port")
	require.NotEmpty(t, app.ISO8583ServerAddr)

	// the iso8583 listener opened before the failure must be gone
	l, err := net.Listen("tcp", app.ISO8583ServerAddr)
	require.NoError(t, err)
	l.Close()
}

func TestAppExpiryLocation(t *testing.T) {
	t.Cleanup(func() { expiry.SetDefaultLocation(time.UTC) })

	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.ISO8583Addr = "127.0.0.1:0"
	cfg.ExpiryTZ = "Europe/Berlin"

	app := NewApp(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	require.NoError(t, app.Start())
	t.Cleanup(app.Shutdown)

	require.Equal(t, "Europe/Berlin", expiry.Now().Location().String())
}
