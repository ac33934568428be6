package registration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/queue"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeRecorder struct {
	entries []models.ActivityEntry
}

func (r *fakeRecorder) Record(_ context.Context, entry models.ActivityEntry) {
	r.entries = append(r.entries, entry)
}

type fakeEnqueuer struct {
	payloads []queue.EmailPayload
}

func (f *fakeEnqueuer) EnqueueEmail(_ context.Context, payload queue.EmailPayload) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

func registerRouter(gate Store, jobs EmailEnqueuer, recorder ActivityRecorder) *gin.Engine {
	h := NewHandler(NewService(gate, zap.NewNop()), jobs, recorder, zap.NewNop())
	r := gin.New()
	r.POST("/register", h.Register)
	r.GET("/register/tokens/:token/validate", h.Validate)
	return r
}

func postRegister(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterEndpoint(t *testing.T) {
	t.Parallel()
	gate := newFakeGate()
	gate.addToken("ABC123", 2, time.Now().Add(time.Hour), true)
	jobs := &fakeEnqueuer{}
	recorder := &fakeRecorder{}
	router := registerRouter(gate, jobs, recorder)

	w := postRegister(router, `{"token":"abc123","full_name":"Dana Walk","email":"Dana@Example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			AttendeeID string `json:"attendee_id"`
			QRToken    string `json:"qr_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Data.AttendeeID)
	require.Len(t, resp.Data.QRToken, 6)

	require.Len(t, jobs.payloads, 1, "a confirmation email is queued")
	require.Equal(t, models.EmailTypeWalkInConfirmation, jobs.payloads[0].EmailType)
	require.NotNil(t, jobs.payloads[0].AttendeeID)

	require.Len(t, recorder.entries, 1)
	require.Equal(t, models.ActionWalkInRegistered, recorder.entries[0].Action)
	require.Equal(t, "dana@example.com", recorder.entries[0].Detail)
}

func TestRegisterEndpointRejections(t *testing.T) {
	t.Parallel()

	// Every rejection fires before the queue or the audit trail is touched.
	reject := func(gate Store) *gin.Engine {
		return registerRouter(gate, &fakeEnqueuer{}, &fakeRecorder{})
	}

	t.Run("invalid body", func(t *testing.T) {
		w := postRegister(reject(newFakeGate()), `{"token":"ABC123","full_name":"No Email","email":"not-an-email"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, w.Body.String(), "valid email")
	})

	t.Run("unknown token", func(t *testing.T) {
		w := postRegister(reject(newFakeGate()), `{"token":"NOPE99","full_name":"No One","email":"no@example.com"}`)
		require.Equal(t, http.StatusNotFound, w.Code)
		require.Contains(t, w.Body.String(), "unknown registration token")
	})

	t.Run("expired token", func(t *testing.T) {
		gate := newFakeGate()
		gate.addToken("OLD111", 5, time.Now().Add(-time.Minute), true)
		w := postRegister(reject(gate), `{"token":"OLD111","full_name":"Late Guest","email":"late@example.com"}`)
		require.Equal(t, http.StatusGone, w.Code)
		require.Contains(t, w.Body.String(), "expired or exhausted")
	})

	t.Run("exhausted token", func(t *testing.T) {
		gate := newFakeGate()
		tok := gate.addToken("FULL22", 1, time.Now().Add(time.Hour), true)
		tok.CurrentUses = 1
		w := postRegister(reject(gate), `{"token":"FULL22","full_name":"Too Late","email":"toolate@example.com"}`)
		require.Equal(t, http.StatusGone, w.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		gate := newFakeGate()
		gate.addToken("DUP333", 5, time.Now().Add(time.Hour), true)
		gate.addAttendee("taken@example.com")
		w := postRegister(reject(gate), `{"token":"DUP333","full_name":"Again","email":"taken@example.com"}`)
		require.Equal(t, http.StatusConflict, w.Code)
		require.Contains(t, w.Body.String(), "already registered")
	})
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()
	gate := newFakeGate()
	tok := gate.addToken("VAL777", 2, time.Now().Add(time.Hour), true)
	tok.Label = "door poster"
	router := registerRouter(gate, &fakeEnqueuer{}, &fakeRecorder{})

	t.Run("usable token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/register/tokens/VAL777/validate", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Success bool        `json:"success"`
			Data    TokenStatus `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.True(t, resp.Success)
		require.True(t, resp.Data.Valid)
		require.Equal(t, "door poster", resp.Data.Label)
		require.Equal(t, 2, resp.Data.RemainingUses)
	})

	t.Run("deactivated token reports invalid", func(t *testing.T) {
		tok.IsActive = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/register/tokens/VAL777/validate", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "pre-flight reports status, it does not gate")
		require.Contains(t, w.Body.String(), `"valid":false`)
	})

	t.Run("unknown token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/register/tokens/MISSING/validate", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}
