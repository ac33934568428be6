package checkin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
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

type fakeFeed struct {
	events   []string
	payloads []interface{}
}

func (f *fakeFeed) Publish(event string, payload interface{}) {
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
}

func scanRouter(store Store, recorder *fakeRecorder, feed *fakeFeed) *gin.Engine {
	h := NewHandler(NewService(store, zap.NewNop()), nil, recorder, feed, zap.NewNop())
	r := gin.New()
	r.POST("/checkins/scan", h.Scan)
	return r
}

func postScan(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/checkins/scan", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestScanEndpoint(t *testing.T) {
	t.Parallel()
	store := newFakeStore("SCAN42")
	recorder := &fakeRecorder{}
	feed := &fakeFeed{}
	router := scanRouter(store, recorder, feed)

	w := postScan(router, `{"qr_token": " scan42 "}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Attendee  models.Attendee `json:"attendee"`
			Ordinal   int             `json:"ordinal"`
			GuestType string          `json:"guest_type"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 1, resp.Data.Ordinal)
	require.Equal(t, models.GuestTypeOriginal, resp.Data.GuestType)
	require.Equal(t, "SCAN42", resp.Data.Attendee.QRToken)

	require.Len(t, recorder.entries, 1)
	require.Equal(t, models.ActionCheckInScan, recorder.entries[0].Action)
	require.NotNil(t, recorder.entries[0].SubjectID)
	require.Equal(t, "ordinal 1 (original)", recorder.entries[0].Detail)

	require.Equal(t, []string{"checkin"}, feed.events)
	event, ok := feed.payloads[0].(feedEvent)
	require.True(t, ok)
	require.Equal(t, 1, event.Ordinal)
	require.Equal(t, "Guest SCAN42", event.AttendeeName)
}

func TestScanEndpointSecondScanIsPlusOne(t *testing.T) {
	t.Parallel()
	store := newFakeStore("TWICE7")
	feed := &fakeFeed{}
	router := scanRouter(store, &fakeRecorder{}, feed)

	require.Equal(t, http.StatusCreated, postScan(router, `{"qr_token":"TWICE7"}`).Code)
	w := postScan(router, `{"qr_token":"TWICE7"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	event := feed.payloads[1].(feedEvent)
	require.Equal(t, 2, event.Ordinal)
	require.Equal(t, models.GuestTypePlusOne, event.GuestType)
}

func TestScanEndpointUnknownToken(t *testing.T) {
	t.Parallel()
	store := newFakeStore("KNOWN1")
	recorder := &fakeRecorder{}
	feed := &fakeFeed{}
	router := scanRouter(store, recorder, feed)

	w := postScan(router, `{"qr_token":"nope99"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "unknown qr token")

	require.Len(t, recorder.entries, 1, "failed scans land in the audit trail")
	require.Equal(t, models.ActionCheckInScanFailed, recorder.entries[0].Action)
	require.Equal(t, "NOPE99", recorder.entries[0].Detail, "the rejected token is recorded normalized")
	require.Empty(t, feed.events, "rejected scans never reach the feed")
}

func TestScanEndpointMissingBody(t *testing.T) {
	t.Parallel()
	router := scanRouter(newFakeStore(), &fakeRecorder{}, &fakeFeed{})

	w := postScan(router, `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "qr_token is required")
}

func TestScanEndpointStoreDown(t *testing.T) {
	t.Parallel()
	store := newFakeStore("DOWN88")
	store.countErr = context.DeadlineExceeded
	feed := &fakeFeed{}
	router := scanRouter(store, &fakeRecorder{}, feed)

	w := postScan(router, `{"qr_token":"DOWN88"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "scan again")
	require.Empty(t, feed.events)
}
