package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labormetrics/pulse/internal/config"
	analyticshandlers "github.com/labormetrics/pulse/internal/modules/analytics/handlers"
	cataloghandlers "github.com/labormetrics/pulse/internal/modules/catalog/handlers"
	ingesthandlers "github.com/labormetrics/pulse/internal/modules/ingest/handlers"
	"github.com/labormetrics/pulse/internal/reliability"
	"github.com/labormetrics/pulse/internal/scheduler"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := zerolog.Nop()
	return New(Config{
		Log:              log,
		Config:           &config.Config{},
		IngestHandler:    ingesthandlers.NewHandler(nil, log),
		AnalyticsHandler: analyticshandlers.NewHandler(nil, nil, log),
		CatalogHandler:   cataloghandlers.NewHandler(log),
		SystemHandlers:   NewSystemHandlers(log, "", nil, &fakeRunHistory{}, &fakeCounter{}),
	})
}

// A nil *BackupJob passed through SetJobs must stay a nil scheduler.Job, so
// the trigger endpoint answers 503 instead of calling Run on a nil receiver.
func TestSetJobs_NilBackupPointer(t *testing.T) {
	srv := newTestServer(t)
	srv.SetJobs((*scheduler.PipelineJob)(nil), (*reliability.BackupJob)(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/system/jobs/backup", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")

	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/system/jobs/pipeline", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// A full ingest run can spend the handler timeout fetching series, and the
// response body is only written after it finishes. The server's write
// deadline has to outlast the handler timeout or the result is cut off.
func TestNew_WriteDeadlineOutlastsHandlerTimeout(t *testing.T) {
	srv := newTestServer(t)
	require.Greater(t, srv.server.WriteTimeout, handlerTimeout)
}
