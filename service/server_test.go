package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/swiss-ai-center/text2audio/bridge"
	"github.com/swiss-ai-center/text2audio/storage"
	"github.com/swiss-ai-center/text2audio/task"
)

type stubProcessor struct {
	out   *bridge.AudioResult
	err   error
	block chan struct{}
}

func (s *stubProcessor) Process(ctx context.Context, jsonDescription, inputText []byte) (*bridge.AudioResult, error) {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.out != nil {
		return s.out, nil
	}
	return &bridge.AudioResult{Data: []byte("ogg result"), MediaType: bridge.MediaTypeOgg}, nil
}

func newTestServer(t *testing.T, proc task.Processor) (*Server, func()) {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	store := task.NewStore()
	runner := task.NewRunner(proc, store, fs, nil, 1, 4)
	runner.Start(context.Background())
	s := NewServer("127.0.0.1:0", NewInfo("http://localhost:9090"), runner, store, fs, 4096*1024)
	return s, runner.Stop
}

func computeRequest(t *testing.T, desc, text string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("json_description", "json_description.json")
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	part.Write([]byte(desc))
	part, err = w.CreateFormFile("input_text", "input_text.txt")
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	part.Write([]byte(text))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/compute", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type taskView struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	ResultKey string `json:"result_key"`
}

func waitForStatus(t *testing.T, s *Server, id, want string) taskView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var view taskView
	for time.Now().Before(deadline) {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/tasks/"+id, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d for task %s", rec.Code, id)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			t.Fatalf("Error: %v", err)
		}
		if view.Status == want {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s, last %+v", id, want, view)
	return view
}

func TestRootRedirectsToDocs(t *testing.T) {
	s, stop := newTestServer(t, &stubProcessor{})
	defer stop()

	rec := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("expected 301, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/docs" {
		t.Fatalf("redirect to %q", loc)
	}
}

func TestDocs(t *testing.T) {
	s, stop := newTestServer(t, &stubProcessor{})
	defer stop()

	rec := do(s, httptest.NewRequest(http.MethodGet, "/docs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Hugging Face") {
		t.Fatalf("docs body does not describe the service")
	}
}

func TestDocsNameAcceptedFormats(t *testing.T) {
	s, stop := newTestServer(t, &stubProcessor{})
	defer stop()

	rec := do(s, httptest.NewRequest(http.MethodGet, "/docs", nil))
	for _, format := range []string{"wav", "flac", "ogg", "mp3"} {
		if !strings.Contains(rec.Body.String(), format) {
			t.Fatalf("docs do not name %s among the accepted formats", format)
		}
	}
}

func TestStatus(t *testing.T) {
	s, stop := newTestServer(t, &stubProcessor{})
	defer stop()

	rec := do(s, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Service string `json:"service"`
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Error: %v", err)
	}
	if body.Service != Name || body.Status != StatusAvailable || body.Version != Version {
		t.Fatalf("unexpected status body %+v", body)
	}
}

func TestComputeLifecycle(t *testing.T) {
	ogg := []byte("OggS pretend vorbis")
	s, stop := newTestServer(t, &stubProcessor{out: &bridge.AudioResult{Data: ogg, MediaType: bridge.MediaTypeOgg}})
	defer stop()

	rec := do(s, computeRequest(t, `{"api_token":"t","api_url":"http://x"}`, "a prompt"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Error: %v", err)
	}
	if created.ID == "" || created.Status != "pending" {
		t.Fatalf("unexpected creation body %+v", created)
	}

	view := waitForStatus(t, s, created.ID, "finished")
	if view.ResultKey == "" {
		t.Fatalf("finished task has no result key")
	}

	res := do(s, httptest.NewRequest(http.MethodGet, "/tasks/"+created.ID+"/result", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != bridge.MediaTypeOgg {
		t.Fatalf("result served as %q", ct)
	}
	if !bytes.Equal(res.Body.Bytes(), ogg) {
		t.Fatalf("result bytes differ from the processor output")
	}
}

func TestComputeMissingPart(t *testing.T) {
	s, stop := newTestServer(t, &stubProcessor{})
	defer stop()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, _ := w.CreateFormFile("input_text", "input_text.txt")
	part.Write([]byte("a prompt"))
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/compute", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := do(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "json_description") {
		t.Fatalf("error does not name the missing part: %s", rec.Body.String())
	}
}

func TestComputeBodyOverLimit(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	store := task.NewStore()
	runner := task.NewRunner(&stubProcessor{}, store, fs, nil, 1, 4)
	runner.Start(context.Background())
	defer runner.Stop()
	s := NewServer("127.0.0.1:0", NewInfo("http://localhost:9090"), runner, store, fs, 1024)

	rec := do(s, computeRequest(t, `{"api_token":"t","api_url":"http://x"}`, strings.Repeat("a", 64*1024)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "1024 byte limit") {
		t.Fatalf("error does not name the size limit: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "missing") {
		t.Fatalf("oversize body misreported as a missing part: %s", rec.Body.String())
	}
}

func TestComputeQueueFullDropsInputs(t *testing.T) {
	dir := t.TempDir()
	fs, err := storage.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	store := task.NewStore()
	// no worker consumes the queue, so only one submission fits
	runner := task.NewRunner(&stubProcessor{}, store, fs, nil, 1, 1)
	s := NewServer("127.0.0.1:0", NewInfo("http://localhost:9090"), runner, store, fs, 4096*1024)

	rec := do(s, computeRequest(t, `{"api_token":"t","api_url":"http://x"}`, "a prompt"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Error: %v", err)
	}

	rec = do(s, computeRequest(t, `{"api_token":"t","api_url":"http://x"}`, "a prompt"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}

	// only the accepted task's inputs may remain on disk
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != created.ID {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("rejected task left artifacts behind: %v", names)
	}
}

func TestTaskNotFound(t *testing.T) {
	s, stop := newTestServer(t, &stubProcessor{})
	defer stop()

	if rec := do(s, httptest.NewRequest(http.MethodGet, "/tasks/nope", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(s, httptest.NewRequest(http.MethodGet, "/tasks/nope/result", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestResultBeforeFinished(t *testing.T) {
	block := make(chan struct{})
	s, stop := newTestServer(t, &stubProcessor{block: block})
	defer func() {
		close(block)
		stop()
	}()

	rec := do(s, computeRequest(t, `{"api_token":"t","api_url":"http://x"}`, "a prompt"))
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Error: %v", err)
	}

	res := do(s, httptest.NewRequest(http.MethodGet, "/tasks/"+created.ID+"/result", nil))
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 before completion, got %d", res.Code)
	}
}

func TestResultOfFailedTask(t *testing.T) {
	s, stop := newTestServer(t, &stubProcessor{err: errors.New("model loading")})
	defer stop()

	rec := do(s, computeRequest(t, `{"api_token":"t","api_url":"http://x"}`, "a prompt"))
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Error: %v", err)
	}
	waitForStatus(t, s, created.ID, "failed")

	res := do(s, httptest.NewRequest(http.MethodGet, "/tasks/"+created.ID+"/result", nil))
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a failed task, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "model loading") {
		t.Fatalf("failure message lost: %s", res.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	s, stop := newTestServer(t, &stubProcessor{})
	defer stop()

	rec := do(s, httptest.NewRequest(http.MethodOptions, "/compute", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing allow-origin header")
	}
}
