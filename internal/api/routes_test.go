package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainovate/Evaluation-UI-sub000/internal/cache/redis"
	"github.com/nainovate/Evaluation-UI-sub000/internal/llm"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
	"github.com/nainovate/Evaluation-UI-sub000/internal/runs"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/models"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/sqlite"
	"github.com/nainovate/Evaluation-UI-sub000/internal/wizard"
)

type stubJudge struct{}

func (stubJudge) Generate(_ context.Context, _, prompt string) (string, error) {
	return "answer to " + prompt, nil
}

func (stubJudge) JudgeMetric(context.Context, llm.JudgeRequest) (*llm.JudgeScore, error) {
	return &llm.JudgeScore{Score: 0.5}, nil
}

type testServer struct {
	app      *fiber.App
	db       *sqlite.Client
	executor *runs.Executor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, func(db *sqlite.Client) (metadata.Backend, metadata.Backend) {
		return redis.Offline{}, sqlite.NewMetadataBackend(db, "evaluationMetadata")
	})
}

func newTestServerWith(t *testing.T, backends func(db *sqlite.Client) (remote, local metadata.Backend)) *testServer {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	require.NoError(t, db.SeedDeployments(context.Background(), sqlite.DefaultDeployments))
	t.Cleanup(func() { db.Close() })

	remote, local := backends(db)
	store := metadata.NewStore(remote, local)
	executor := runs.NewExecutor(db, stubJudge{}, runs.WithFinishFunc(runs.RecordInStore(store)))
	t.Cleanup(func() { executor.Shutdown(context.Background()) })

	nav, err := wizard.NewNavigator(wizard.DefaultStepNames)
	require.NoError(t, err)
	controller := wizard.NewController(nav, store, wizard.WithLauncher(executor))
	controller.Init(context.Background())

	app := fiber.New()
	Register(app, Deps{
		DB:             db,
		Store:          store,
		Controller:     controller,
		Executor:       executor,
		MaxUploadBytes: 1024,
		PreviewRows:    2,
		HistoryLimit:   10,
	})
	return &testServer{app: app, db: db, executor: executor}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

const qaRows = `[
	{"question":"q1","expected_answer":"a1"},
	{"question":"q2","expected_answer":"a2"},
	{"question":"q3","expected_answer":"a3"}
]`

func (s *testServer) createDataset(t *testing.T) map[string]any {
	t.Helper()
	status, body := s.do(t, "POST", "/api/v1/datasets",
		`{"name":"QA Set","taskType":"question_answering","rows":`+qaRows+`}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	return body["dataset"].(map[string]any)
}

func TestDatasetLifecycle(t *testing.T) {
	s := newTestServer(t)

	ds := s.createDataset(t)
	assert.Equal(t, "valid", ds["status"])
	assert.EqualValues(t, 3, ds["rows"])
	assert.NotEmpty(t, ds["uid"])
	id := ds["id"].(string)

	status, body := s.do(t, "GET", "/api/v1/datasets/"+id, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["preview"], 2)

	status, body = s.do(t, "PUT", "/api/v1/datasets/"+id, `{"taskType":"summarization"}`)
	require.Equal(t, fiber.StatusOK, status)
	updated := body["dataset"].(map[string]any)
	assert.Equal(t, "invalid", updated["status"])
	assert.NotEmpty(t, updated["validationErrors"])

	status, body = s.do(t, "GET", "/api/v1/datasets", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, _ = s.do(t, "DELETE", "/api/v1/datasets/"+id, "")
	assert.Equal(t, fiber.StatusNoContent, status)

	status, _ = s.do(t, "GET", "/api/v1/datasets/"+id, "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestDatasetUpload(t *testing.T) {
	s := newTestServer(t)

	upload := func(content string) (int, map[string]any) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("taskType", "question_answering"))
		require.NoError(t, w.WriteField("tags", "qa, smoke"))
		part, err := w.CreateFormFile("file", "qa.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest("POST", "/api/v1/datasets", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		return s.send(t, req)
	}

	status, body := upload("question,expected_answer\nq1,a1\nq2,a2\n")
	require.Equal(t, fiber.StatusCreated, status, body)
	ds := body["dataset"].(map[string]any)
	assert.Equal(t, "qa.csv", ds["name"])
	assert.Equal(t, "csv", ds["format"])
	assert.Equal(t, []any{"qa", "smoke"}, ds["tags"])

	status, _ = upload("question,expected_answer\n" + strings.Repeat("q,a\n", 400))
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, status)
}

func TestValidateColumns(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/datasets/validate",
		`{"columns":["question"],"taskType":"question_answering"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "invalid", body["status"])
	assert.NotEmpty(t, body["errors"])

	status, body = s.do(t, "GET", "/api/v1/task-types", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["taskTypes"])
}

func TestWizardErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/wizard/steps/dataset/complete", `{"name":"QA Set"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.NotEmpty(t, body["details"])

	status, _ = s.do(t, "POST", "/api/v1/wizard/steps/metrics/complete", `{}`)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = s.do(t, "POST", "/api/v1/wizard/steps/nope/complete", `{}`)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = s.do(t, "POST", "/api/v1/wizard/back", "")
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = s.do(t, "PUT", "/api/v1/wizard/metrics/categories/rag-metrics/sub-metrics/faithfulness", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

// completeWizard walks every step with valid payloads and returns the
// response of the review step.
func (s *testServer) completeWizard(t *testing.T) map[string]any {
	t.Helper()
	ds := s.createDataset(t)

	datasetStep, _ := json.Marshal(map[string]any{
		"id":       ds["id"],
		"uid":      ds["uid"],
		"name":     ds["name"],
		"taskType": "question_answering",
		"rows":     3,
		"columns":  ds["columns"],
	})

	steps := []struct{ key, body string }{
		{"dataset", string(datasetStep)},
		{"model", `{"deployments":[{"id":"gpt-4o","name":"GPT-4o","model":"gpt-4o","provider":"openai"}]}`},
		{"metrics", `{"selectedCategory":"rag-metrics","enabledMetrics":["faithfulness"],"settings":{"batchSize":2}}`},
		{"review", `{"evaluationName":"nightly"}`},
	}

	var body map[string]any
	for _, step := range steps {
		var status int
		status, body = s.do(t, "POST", "/api/v1/wizard/steps/"+step.key+"/complete", step.body)
		require.Equal(t, fiber.StatusOK, status, "%s: %v", step.key, body)
		assert.Equal(t, true, body["advanced"], step.key)
		assert.Equal(t, string(metadata.SourceLocal), body["persistedTo"], step.key)
	}
	return body
}

func (s *testServer) waitCompleted(t *testing.T, runID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, err := s.executor.Get(context.Background(), runID)
		return err == nil && got.Status == models.RunCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWizardFlowLaunchesRun(t *testing.T) {
	s := newTestServer(t)
	body := s.completeWizard(t)

	run := body["run"].(map[string]any)
	runID := run["id"].(string)
	assert.Equal(t, "success", body["to"].(map[string]any)["key"])

	s.waitCompleted(t, runID)

	status, body := s.do(t, "GET", "/api/v1/runs/"+runID, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "nightly", body["run"].(map[string]any)["name"])

	status, body = s.do(t, "GET", "/api/v1/runs/summary", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["completed"])

	status, body = s.do(t, "GET", "/api/v1/evaluation-metadata", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(metadata.SourceLocal), body["source"])

	status, _ = s.do(t, "GET", "/api/v1/runs/missing", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestMetadataEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/api/v1/evaluation-metadata", "")
	require.Equal(t, fiber.StatusOK, status)
	first := body["metadata"].(map[string]any)["evaluationSession"].(map[string]any)["id"]

	status, _ = s.do(t, "PUT", "/api/v1/evaluation-metadata", `{"dataset":`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, "DELETE", "/api/v1/evaluation-metadata", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(metadata.SourceLocal), body["persistedTo"])
	assert.NotEqual(t, first, body["metadata"].(map[string]any)["evaluationSession"].(map[string]any)["id"])
}

func TestCatalogAndOps(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/deployments", "/api/v1/wizard/steps", "/api/v1/wizard/state", "/api/v1/metrics/catalog", "/api/v1/runs", "/api/v1/health", "/api/v1/ready"} {
		status, body := s.do(t, "GET", path, "")
		assert.Equal(t, fiber.StatusOK, status, path)
		assert.NotEmpty(t, body, path)
	}

	status, body := s.do(t, "GET", "/api/v1/deployments", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, len(sqlite.DefaultDeployments), body["total"])

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/v1/ws/runs/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

type downBackend struct{}

func (downBackend) Load(context.Context) (*metadata.EvaluationMetadata, error) {
	return nil, errors.New("backend down")
}

func (downBackend) Save(context.Context, *metadata.EvaluationMetadata) error {
	return errors.New("backend down")
}

const qaDatasetStep = `{"uid":"d1","id":"d1","name":"QA Set","taskType":"question_answering","rows":500,
	"columns":["question","expected_answer","generated_answer"]}`

func TestMetadataReadKeepsProgressAfterFailedWrite(t *testing.T) {
	s := newTestServerWith(t, func(*sqlite.Client) (metadata.Backend, metadata.Backend) {
		return downBackend{}, downBackend{}
	})

	status, body := s.do(t, "POST", "/api/v1/wizard/steps/dataset/complete", qaDatasetStep)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, string(metadata.SourceNone), body["persistedTo"])

	status, body = s.do(t, "GET", "/api/v1/evaluation-metadata", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(metadata.SourceNone), body["source"])
	assert.Equal(t, "d1", body["metadata"].(map[string]any)["dataset"].(map[string]any)["id"])

	status, body = s.do(t, "GET", "/api/v1/wizard/state", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "model", body["currentStep"].(map[string]any)["key"])
	assert.Equal(t, true, body["canProceed"].(map[string]any)["dataset"])
}

func TestMetadataResetReturnsWizardToFirstStep(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/wizard/steps/dataset/complete", qaDatasetStep)
	require.Equal(t, fiber.StatusOK, status, body)
	session := body["metadata"].(map[string]any)["evaluationSession"].(map[string]any)["id"]

	status, body = s.do(t, "DELETE", "/api/v1/evaluation-metadata", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "dataset", body["currentStep"].(map[string]any)["key"])

	status, body = s.do(t, "GET", "/api/v1/wizard/state", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "dataset", body["currentStep"].(map[string]any)["key"])
	md := body["metadata"].(map[string]any)
	assert.Nil(t, md["dataset"])
	assert.NotEqual(t, session, md["evaluationSession"].(map[string]any)["id"])

	status, _ = s.do(t, "POST", "/api/v1/wizard/steps/dataset/complete", qaDatasetStep)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestMetadataPatchMovesWizard(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "PUT", "/api/v1/evaluation-metadata", `{"evaluationSession":{"currentStep":3}}`)
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = s.do(t, "GET", "/api/v1/wizard/state", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "metrics", body["currentStep"].(map[string]any)["key"])
}

func (s *testServer) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.app.Listener(ln) }()
	t.Cleanup(func() { _ = s.app.Shutdown() })
	return ln.Addr().String()
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	msg := map[string]any{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRunStreamSendsStatusThenComplete(t *testing.T) {
	s := newTestServer(t)
	runID := s.completeWizard(t)["run"].(map[string]any)["id"].(string)
	s.waitCompleted(t, runID)

	addr := s.listen(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws/runs/"+runID, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	assert.Equal(t, "status", first["type"])
	assert.Equal(t, runID, first["run"].(map[string]any)["id"])
	assert.Contains(t, first, "progress")

	last := readMessage(t, conn)
	assert.Equal(t, "complete", last["type"])
	assert.Equal(t, string(models.RunCompleted), last["run"].(map[string]any)["status"])
}

func TestRunStreamUnknownRun(t *testing.T) {
	s := newTestServer(t)
	addr := s.listen(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws/runs/missing", nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Run not found", msg["error"])
}
