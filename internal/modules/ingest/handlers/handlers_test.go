package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labormetrics/pulse/internal/modules/ingest"
)

type fakeService struct {
	result *ingest.Result
	err    error
	req    ingest.Request
}

func (f *fakeService) Ingest(_ context.Context, req ingest.Request) (*ingest.Result, error) {
	f.req = req
	return f.result, f.err
}

func doIngest(t *testing.T, svc IngestService, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleIngest(rec, req)
	return rec
}

func TestHandleIngest_AllLoaded(t *testing.T) {
	svc := &fakeService{result: &ingest.Result{
		RunID:   "r1",
		Status:  ingest.StatusOK,
		Results: map[string]ingest.SeriesResult{"UNRATE": {Status: "ok", RowsLoaded: 12}},
	}}

	rec := doIngest(t, svc, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"r1"`)
}

func TestHandleIngest_PartialFailure(t *testing.T) {
	svc := &fakeService{result: &ingest.Result{
		RunID:  "r2",
		Status: ingest.StatusPartial,
		Results: map[string]ingest.SeriesResult{
			"UNRATE": {Status: "ok", RowsLoaded: 12},
			"ICSA":   {Status: "error", Error: "boom"},
		},
		Errors: map[string]string{"ICSA": "boom"},
	}}

	rec := doIngest(t, svc, "")
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestHandleIngest_AllFailed(t *testing.T) {
	svc := &fakeService{result: &ingest.Result{
		RunID:  "r3",
		Status: ingest.StatusFailed,
		Errors: map[string]string{"UNRATE": "boom"},
	}}

	rec := doIngest(t, svc, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleIngest_BodyDecoded(t *testing.T) {
	svc := &fakeService{result: &ingest.Result{Status: ingest.StatusOK}}

	rec := doIngest(t, svc, `{"backfill": true, "series": ["UNRATE"], "observation_start": "2015-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.req.Backfill)
	assert.Equal(t, []string{"UNRATE"}, svc.req.Series)
	assert.Equal(t, "2015-01-01", svc.req.ObservationStart)
}

func TestHandleIngest_EmptyBodyIsIncrementalRun(t *testing.T) {
	svc := &fakeService{result: &ingest.Result{Status: ingest.StatusOK}}

	rec := doIngest(t, svc, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.req.Backfill)
	assert.Empty(t, svc.req.Series)
}

func TestHandleIngest_MalformedBody(t *testing.T) {
	svc := &fakeService{}

	rec := doIngest(t, svc, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngest_MissingAPIKey(t *testing.T) {
	svc := &fakeService{err: ingest.ErrMissingAPIKey}

	rec := doIngest(t, svc, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "FRED API key")
}
