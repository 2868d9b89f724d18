package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/scholara/internal/analytics/domain"
	"github.com/smallbiznis/scholara/internal/analytics/notify"
	"github.com/smallbiznis/scholara/internal/analytics/queue"
	"github.com/smallbiznis/scholara/internal/clock"
	archivedomain "github.com/smallbiznis/scholara/internal/invoicearchive/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeArchiveService struct {
	createdYears []int
	createErr    error
	override     *archivedomain.PolicyOverride
	archiveErr   error
	result       archivedomain.ArchiveResult
	partitions   []archivedomain.PartitionInfo
	stats        archivedomain.ArchivingStats
}

func (f *fakeArchiveService) CreatePartitions(ctx context.Context, year int) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createdYears = append(f.createdYears, year)
	return nil
}

func (f *fakeArchiveService) GetPartitionInfo(ctx context.Context) ([]archivedomain.PartitionInfo, error) {
	return f.partitions, nil
}

func (f *fakeArchiveService) ArchiveOldInvoices(ctx context.Context, override *archivedomain.PolicyOverride) (archivedomain.ArchiveResult, error) {
	f.override = override
	if f.archiveErr != nil {
		return archivedomain.ArchiveResult{}, f.archiveErr
	}
	return f.result, nil
}

func (f *fakeArchiveService) GetArchivingStats(ctx context.Context) (archivedomain.ArchivingStats, error) {
	return f.stats, nil
}

type fakeAnalyticsService struct {
	submissionID snowflake.ID
	input        analyticsdomain.GradingInput
	processErr   error
	filter       analyticsdomain.AlertFilter
	alerts       []analyticsdomain.PerformanceAlert
}

func (f *fakeAnalyticsService) ProcessGradingEvent(ctx context.Context, submissionID snowflake.ID, input analyticsdomain.GradingInput) (analyticsdomain.PerformanceData, error) {
	f.submissionID = submissionID
	f.input = input
	if f.processErr != nil {
		return analyticsdomain.PerformanceData{}, f.processErr
	}
	return analyticsdomain.PerformanceData{
		SubmissionID: submissionID,
		ClassID:      snowflake.ID(77),
		Score:        input.Score,
		MaxScore:     input.MaxScore,
		Percentage:   input.Score / input.MaxScore * 100,
		GradingType:  input.GradingType,
	}, nil
}

func (f *fakeAnalyticsService) HandleUpdate(ctx context.Context, update analyticsdomain.Update) error {
	return nil
}

func (f *fakeAnalyticsService) ListAlerts(ctx context.Context, filter analyticsdomain.AlertFilter) ([]analyticsdomain.PerformanceAlert, error) {
	f.filter = filter
	return f.alerts, nil
}

type testServer struct {
	router    *gin.Engine
	archive   *fakeArchiveService
	analytics *fakeAnalyticsService
	queue     *queue.Queue
	hub       *notify.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		router:    router,
		archive:   &fakeArchiveService{},
		analytics: &fakeAnalyticsService{},
		queue:     queue.NewQueue(1, 10, clock.NewFakeClock(time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)), zap.NewNop(), nil),
		hub:       notify.NewHub(),
	}
	NewServer(ServerParams{
		Gin:          router,
		ArchiveSvc:   ts.archive,
		AnalyticsSvc: ts.analytics,
		Queue:        ts.queue,
		ClassEvents:  ts.hub,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestCreateInvoicePartitions(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/internal/invoices/partitions", `{"year":2026}`)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []int{2026}, ts.archive.createdYears)
}

func TestCreateInvoicePartitionsRequiresYear(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/internal/invoices/partitions", `{}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "year", payload.Errors[0].Field)
	assert.Empty(t, ts.archive.createdYears)
}

func TestCreateInvoicePartitionsMapsInvalidYear(t *testing.T) {
	ts := newTestServer(t)
	ts.archive.createErr = archivedomain.ErrInvalidYear

	resp := ts.do(t, http.MethodPost, "/internal/invoices/partitions", `{"year":1999}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_partition_year", payload.Errors[0].Code)
	assert.Equal(t, "year", payload.Errors[0].Field)
}

func TestListInvoicePartitionsReturnsEmptyList(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/internal/invoices/partitions", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":[]}`, resp.Body.String())
}

func TestArchiveInvoicesPassesOverride(t *testing.T) {
	ts := newTestServer(t)
	ts.archive.result = archivedomain.ArchiveResult{
		ArchivedCount:       12,
		ProcessedPartitions: []string{"ARCHIVE:invoices_2025_q1"},
	}

	resp := ts.do(t, http.MethodPost, "/internal/invoices/archive", `{"batch_size":50,"enable_compression":false}`)

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, ts.archive.override)
	require.NotNil(t, ts.archive.override.BatchSize)
	assert.Equal(t, 50, *ts.archive.override.BatchSize)
	require.NotNil(t, ts.archive.override.EnableCompression)
	assert.False(t, *ts.archive.override.EnableCompression)
	assert.Nil(t, ts.archive.override.ArchiveAfterMonths)
	assert.Contains(t, resp.Body.String(), `"archived_count":12`)
}

func TestArchiveInvoicesAcceptsEmptyBody(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/internal/invoices/archive", "")

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, ts.archive.override)
	assert.Equal(t, archivedomain.PolicyOverride{}, *ts.archive.override)
	assert.Contains(t, resp.Body.String(), `"processed_partitions":[]`)
}

func TestArchiveInvoicesInternalErrorKeepsFixedMessage(t *testing.T) {
	ts := newTestServer(t)
	ts.archive.archiveErr = archivedomain.NewOperationError("archive_old_invoices", archivedomain.MsgArchiveInvoices, errors.New("relation does not exist"))

	resp := ts.do(t, http.MethodPost, "/internal/invoices/archive", `{}`)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "internal_error", payload.Type)
	assert.Equal(t, "Failed to archive invoices", payload.Message)
	assert.NotContains(t, resp.Body.String(), "relation does not exist")
}

func TestArchiveInvoicesInvalidPolicy(t *testing.T) {
	ts := newTestServer(t)
	ts.archive.archiveErr = archivedomain.ErrInvalidPolicy

	resp := ts.do(t, http.MethodPost, "/internal/invoices/archive", `{"compress_after_months":1}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "policy", payload.Errors[0].Field)
}

func TestGetArchivingStats(t *testing.T) {
	ts := newTestServer(t)
	ts.archive.stats = archivedomain.ArchivingStats{TotalPartitions: 8, ActivePartitions: 5}

	resp := ts.do(t, http.MethodGet, "/internal/invoices/archive/stats", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"total_partitions":8`)
	assert.Contains(t, resp.Body.String(), `"active_partitions":5`)
}

func TestSubmitGrading(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/submissions/1234/grading",
		`{"score":25,"max_score":50,"grading_type":"manual","blooms_level_scores":{"APPLY":80}}`)

	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, snowflake.ID(1234), ts.analytics.submissionID)
	assert.Equal(t, analyticsdomain.GradingTypeManual, ts.analytics.input.GradingType)
	assert.Equal(t, 80.0, ts.analytics.input.BloomsLevelScores[analyticsdomain.BloomsApply])
	assert.Contains(t, resp.Body.String(), `"percentage":50`)
}

func TestSubmitGradingValidatesRequest(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/submissions/not-an-id/grading", `{"score":1,"max_score":2}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.do(t, http.MethodPost, "/api/submissions/1234/grading", `{"max_score":2}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "score", payload.Errors[0].Field)

	resp = ts.do(t, http.MethodPost, "/api/submissions/1234/grading", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitGradingMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"not found", analyticsdomain.ErrSubmissionNotFound, http.StatusNotFound, "not_found"},
		{"invalid input", analyticsdomain.ErrInvalidGrading, http.StatusBadRequest, "validation_error"},
		{"store failure", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.analytics.processErr = tc.err

			resp := ts.do(t, http.MethodPost, "/api/submissions/1234/grading", `{"score":1,"max_score":2,"grading_type":"AUTO"}`)

			require.Equal(t, tc.status, resp.Code)
			assert.Equal(t, tc.kind, decodeError(t, resp).Type)
		})
	}
}

func TestListPerformanceAlerts(t *testing.T) {
	ts := newTestServer(t)
	ts.analytics.alerts = []analyticsdomain.PerformanceAlert{{
		ID:           snowflake.ID(9),
		ClassID:      snowflake.ID(77),
		SubmissionID: snowflake.ID(1234),
		Kind:         analyticsdomain.AlertStruggling,
		Percentage:   55,
		Confidence:   0.8,
	}}

	resp := ts.do(t, http.MethodGet, "/internal/analytics/alerts?class_id=77&kind=STRUGGLING&since=2026-03-01&limit=5", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, snowflake.ID(77), ts.analytics.filter.ClassID)
	assert.Equal(t, analyticsdomain.AlertStruggling, ts.analytics.filter.Kind)
	assert.Equal(t, 5, ts.analytics.filter.Limit)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), ts.analytics.filter.Since)
	assert.Contains(t, resp.Body.String(), `"submission_id":"1234"`)
}

func TestListPerformanceAlertsRejectsBadQuery(t *testing.T) {
	ts := newTestServer(t)

	for _, query := range []string{"kind=bored", "class_id=abc", "limit=0", "since=yesterday"} {
		resp := ts.do(t, http.MethodGet, "/internal/analytics/alerts?"+query, "")
		assert.Equal(t, http.StatusBadRequest, resp.Code, query)
	}
}

func TestListDeadLetters(t *testing.T) {
	ts := newTestServer(t)
	update := analyticsdomain.Update{Type: analyticsdomain.UpdateActivityGraded}
	require.NoError(t, ts.queue.Enqueue(update))
	require.ErrorIs(t, ts.queue.Enqueue(update), analyticsdomain.ErrQueueFull)

	resp := ts.do(t, http.MethodGet, "/internal/analytics/dead-letters", "")

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Data deadLettersResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.QueueDepth)
	assert.Equal(t, 1, body.Data.QueueCapacity)
	assert.Equal(t, 1, body.Data.Stats.Entries)
	require.Len(t, body.Data.Entries, 1)
	assert.Equal(t, queue.CategoryQueueFull, body.Data.Entries[0].Category)
}

func TestStreamClassEventsWritesBacklog(t *testing.T) {
	ts := newTestServer(t)
	keepAlive, _, err := ts.hub.Subscribe("77")
	require.NoError(t, err)
	defer keepAlive.Close()
	ts.hub.Publish(notify.Event{
		Type:    analyticsdomain.UpdateActivityGraded,
		ClassID: "77",
		Data:    analyticsdomain.PerformanceData{SubmissionID: snowflake.ID(1234)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/classes/77/events", nil).WithContext(ctx)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Body.String(), "event: activity_graded")
	assert.Contains(t, resp.Body.String(), `"submission_id":"1234"`)
}

func TestStreamClassEventsRejectsBadClass(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/classes/abc/events", "")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/nope", "")

	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", decodeError(t, resp).Type)
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(analyticsdomain.ErrSubmissionNotFound)
	assert.Equal(t, "client", kind)
	assert.Equal(t, "not_found", code)

	kind, code = classifyErrorForLog(archivedomain.ErrInvalidYear)
	assert.Equal(t, "client", kind)
	assert.Equal(t, "invalid_partition_year", code)

	kind, _ = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "server", kind)
}
