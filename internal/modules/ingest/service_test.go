package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labormetrics/pulse/internal/clients/fred"
)

// fakeSourceClient serves canned observations per series and can fail
// selected series to exercise per-series isolation.
type fakeSourceClient struct {
	observations map[string][]fred.Observation
	failures     map[string]error
	starts       map[string]string // records the start date used per series
}

func newFakeSourceClient() *fakeSourceClient {
	return &fakeSourceClient{
		observations: make(map[string][]fred.Observation),
		failures:     make(map[string]error),
		starts:       make(map[string]string),
	}
}

func (f *fakeSourceClient) FetchObservations(_ context.Context, seriesID, start string) ([]fred.Observation, error) {
	f.starts[seriesID] = start
	if err, ok := f.failures[seriesID]; ok {
		return nil, err
	}
	return f.observations[seriesID], nil
}

func val(v float64) *float64 { return &v }

func newTestService(t *testing.T, client SourceClient) (*Service, *RawRepository) {
	repo := NewRawRepository(setupTestWarehouseDB(t), zerolog.Nop())
	svc := NewService(client, repo, "test-key", "2000-01-01", zerolog.Nop())
	return svc, repo
}

func TestIngest_MissingAPIKey(t *testing.T) {
	repo := NewRawRepository(setupTestWarehouseDB(t), zerolog.Nop())
	svc := NewService(newFakeSourceClient(), repo, "", "2000-01-01", zerolog.Nop())

	_, err := svc.Ingest(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestIngest_LoadsSeries(t *testing.T) {
	client := newFakeSourceClient()
	client.observations["UNRATE"] = []fred.Observation{
		{Date: "2024-01-01", Value: val(3.7)},
		{Date: "2024-02-01", Value: val(3.9)},
	}
	svc, repo := newTestService(t, client)

	result, err := svc.Ingest(context.Background(), Request{Series: []string{"UNRATE"}})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, result.Status)
	assert.NotEmpty(t, result.RunID)
	require.Contains(t, result.Results, "UNRATE")
	assert.Equal(t, "ok", result.Results["UNRATE"].Status)
	assert.Equal(t, 2, result.Results["UNRATE"].RowsLoaded)
	assert.Empty(t, result.Errors)

	// Empty store: fetch started from the configured default
	assert.Equal(t, "2000-01-01", client.starts["UNRATE"])

	count, err := repo.CountForSeries("UNRATE")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngest_MissingValuesDropped(t *testing.T) {
	client := newFakeSourceClient()
	client.observations["UNRATE"] = []fred.Observation{
		{Date: "2024-01-01", Value: val(3.7)},
		{Date: "2024-02-01", Value: nil}, // source missing-marker
		{Date: "2024-03-01", Value: val(3.9)},
	}
	svc, repo := newTestService(t, client)

	result, err := svc.Ingest(context.Background(), Request{Series: []string{"UNRATE"}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Results["UNRATE"].RowsLoaded)

	count, err := repo.CountForSeries("UNRATE")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngest_IncrementalUsesWatermark(t *testing.T) {
	client := newFakeSourceClient()
	client.observations["UNRATE"] = []fred.Observation{
		{Date: "2024-01-01", Value: val(3.7)},
	}
	svc, _ := newTestService(t, client)

	_, err := svc.Ingest(context.Background(), Request{Series: []string{"UNRATE"}})
	require.NoError(t, err)

	// Second run: the revised watermark value plus one new observation
	client.observations["UNRATE"] = []fred.Observation{
		{Date: "2024-01-01", Value: val(3.8)},
		{Date: "2024-02-01", Value: val(3.9)},
	}

	result, err := svc.Ingest(context.Background(), Request{Series: []string{"UNRATE"}})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)

	// The fetch restarted at the watermark date itself, inclusive
	assert.Equal(t, "2024-01-01", client.starts["UNRATE"])
}

func TestIngest_RevisionsUpsertNotDuplicate(t *testing.T) {
	client := newFakeSourceClient()
	client.observations["UNRATE"] = []fred.Observation{
		{Date: "2024-01-01", Value: val(3.7)},
	}
	svc, repo := newTestService(t, client)

	_, err := svc.Ingest(context.Background(), Request{Series: []string{"UNRATE"}})
	require.NoError(t, err)

	client.observations["UNRATE"] = []fred.Observation{
		{Date: "2024-01-01", Value: val(3.8)},
		{Date: "2024-02-01", Value: val(3.9)},
	}
	_, err = svc.Ingest(context.Background(), Request{Series: []string{"UNRATE"}})
	require.NoError(t, err)

	// Exactly one row per date: the watermark re-fetch updated in place
	count, err := repo.CountForSeries("UNRATE")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	all, err := repo.AllOrdered()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.InDelta(t, 3.8, all[0].Value, 1e-9)
}

func TestIngest_Idempotent(t *testing.T) {
	client := newFakeSourceClient()
	client.observations["UNRATE"] = []fred.Observation{
		{Date: "2024-01-01", Value: val(3.7)},
		{Date: "2024-02-01", Value: val(3.9)},
	}
	svc, repo := newTestService(t, client)

	_, err := svc.Ingest(context.Background(), Request{Series: []string{"UNRATE"}})
	require.NoError(t, err)
	first, err := repo.AllOrdered()
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), Request{Series: []string{"UNRATE"}})
	require.NoError(t, err)
	second, err := repo.AllOrdered()
	require.NoError(t, err)

	// Same dates, same values, same row count
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Date, second[i].Date)
		assert.Equal(t, first[i].Value, second[i].Value)
	}
}

func TestIngest_PerSeriesIsolation(t *testing.T) {
	client := newFakeSourceClient()
	client.observations["PAYEMS"] = []fred.Observation{
		{Date: "2024-01-01", Value: val(157000)},
	}
	client.failures["UNRATE"] = errors.New("request timed out")
	svc, repo := newTestService(t, client)

	result, err := svc.Ingest(context.Background(), Request{Series: []string{"PAYEMS", "UNRATE"}})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, "ok", result.Results["PAYEMS"].Status)
	assert.Equal(t, "error", result.Results["UNRATE"].Status)
	assert.Contains(t, result.Errors["UNRATE"], "timed out")

	// The healthy series still landed
	count, err := repo.CountForSeries("PAYEMS")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngest_AllFailed(t *testing.T) {
	client := newFakeSourceClient()
	client.failures["PAYEMS"] = errors.New("boom")
	client.failures["UNRATE"] = errors.New("boom")
	svc, _ := newTestService(t, client)

	result, err := svc.Ingest(context.Background(), Request{Series: []string{"PAYEMS", "UNRATE"}})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
}

func TestIngest_BackfillIgnoresWatermark(t *testing.T) {
	client := newFakeSourceClient()
	client.observations["UNRATE"] = []fred.Observation{
		{Date: "2024-06-01", Value: val(4.1)},
	}
	svc, _ := newTestService(t, client)

	_, err := svc.Ingest(context.Background(), Request{Series: []string{"UNRATE"}})
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), Request{
		Backfill:         true,
		Series:           []string{"UNRATE"},
		ObservationStart: "2010-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "2010-01-01", client.starts["UNRATE"])

	// Backfill without an explicit start falls back to the default
	_, err = svc.Ingest(context.Background(), Request{Backfill: true, Series: []string{"UNRATE"}})
	require.NoError(t, err)
	assert.Equal(t, "2000-01-01", client.starts["UNRATE"])
}

func TestIngest_UnknownSeriesFilteredOut(t *testing.T) {
	client := newFakeSourceClient()
	svc, _ := newTestService(t, client)

	result, err := svc.Ingest(context.Background(), Request{Series: []string{"NOT_TRACKED"}})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Equal(t, StatusOK, result.Status)
}
