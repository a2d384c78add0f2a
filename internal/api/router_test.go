package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolwon/ivscreen/internal/api/handlers"
	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/history"
	"github.com/seolwon/ivscreen/internal/pipeline"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// fakeRepo serves canned run output.
type fakeRepo struct {
	summaries map[string]*contracts.FunnelSummary
	latest    string
}

func (f *fakeRepo) SaveRun(ctx context.Context, result *pipeline.RunResult) error { return nil }

func (f *fakeRepo) GetSummary(ctx context.Context, runID string) (*contracts.FunnelSummary, error) {
	if s, ok := f.summaries[runID]; ok {
		return s, nil
	}
	return nil, pipeline.ErrRunNotFound
}

func (f *fakeRepo) LatestSummary(ctx context.Context) (*contracts.FunnelSummary, error) {
	return f.GetSummary(ctx, f.latest)
}

func (f *fakeRepo) GetSelections(ctx context.Context, runID string) (*contracts.SelectionReport, error) {
	if _, ok := f.summaries[runID]; !ok {
		return nil, pipeline.ErrRunNotFound
	}
	return &contracts.SelectionReport{
		Selections: []contracts.FinalSelection{{
			CandidateID: "AAPL-1", Symbol: "AAPL",
			Family: contracts.FamilyDirectional, PositionValid: true,
		}},
	}, nil
}

func (f *fakeRepo) GetResults(ctx context.Context, runID string) ([]contracts.AcceptanceResult, error) {
	if _, ok := f.summaries[runID]; !ok {
		return nil, pipeline.ErrRunNotFound
	}
	return []contracts.AcceptanceResult{{
		CandidateID: "AAPL-1", Symbol: "AAPL",
		Status: contracts.StatusReadyNow, Confidence: contracts.ConfidenceHigh,
		Reason: "structural score 85.0 at or above threshold 60.0",
	}}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.Nop()

	repo := &fakeRepo{
		latest: "run-1",
		summaries: map[string]*contracts.FunnelSummary{
			"run-1": {
				RunID:          "run-1",
				SnapshotRef:    "snap.json",
				CandidateCount: 10,
				SelectedCount:  2,
				StatusCounts:   map[contracts.Status]int{contracts.StatusReadyNow: 3},
				Completed:      true,
			},
		},
	}

	store := history.NewMemoryStore()
	_, err := store.Append(context.Background(), []contracts.VolatilityObservation{{
		Symbol:    "AAPL",
		Date:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		IVByTenor: map[int]float64{30: 0.31},
		Source:    "test",
		Quality:   contracts.QualityFull,
	}})
	require.NoError(t, err)

	return NewRouter(
		handlers.NewRunHandler(repo, nil, log),
		handlers.NewCoverageHandler(store, log),
		RouterOptions{},
		log,
	)
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := get(t, newTestRouter(t), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestGetLatestSummary(t *testing.T) {
	rec := get(t, newTestRouter(t), "/api/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary contracts.FunnelSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 10, summary.CandidateCount)
}

func TestGetRunNotFound(t *testing.T) {
	rec := get(t, newTestRouter(t), "/api/runs/absent")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSelections(t *testing.T) {
	rec := get(t, newTestRouter(t), "/api/runs/run-1/selections")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"AAPL"`)
}

func TestGetResults(t *testing.T) {
	rec := get(t, newTestRouter(t), "/api/runs/run-1/results")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "READY_NOW")
}

func TestCoverageEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := get(t, router, "/api/coverage/AAPL")
	require.Equal(t, http.StatusOK, rec.Code)

	var cov history.Coverage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cov))
	assert.Equal(t, 1, cov.ObservationCount)

	rec = get(t, router, "/api/coverage/UNKNOWN")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, router, "/api/coverage")
	assert.Equal(t, http.StatusOK, rec.Code)
}
