package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srs_generator/document"
	"srs_generator/pipeline"
	"srs_generator/srs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner 写一个假文档；release 非 nil 时阻塞到通道关闭
type fakeRunner struct {
	release chan struct{}
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, brief srs.ProjectBrief) (*pipeline.Report, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	report := &pipeline.Report{OutputFile: brief.OutputFile}
	if f.err != nil {
		return report, f.err
	}
	if err := os.WriteFile(brief.OutputFile, []byte("docx-bytes"), 0o644); err != nil {
		return report, err
	}
	report.PreviewFile = document.PreviewPath(brief.OutputFile)
	if err := os.WriteFile(report.PreviewFile, []byte("<h2>1. Introduction</h2>"), 0o644); err != nil {
		return report, err
	}
	return report, nil
}

func newTestServer(t *testing.T, runner *fakeRunner) (*Server, http.Handler) {
	t.Helper()
	s, err := New(func(string) (Runner, error) { return runner, nil }, Options{
		OutputDir: t.TempDir(),
		MaxJobs:   1,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJob(t *testing.T, w *httptest.ResponseRecorder) Job {
	t.Helper()
	var job Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	return job
}

func waitStatus(t *testing.T, h http.Handler, id string, want JobStatus) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/srs/"+id, nil))
		return json.Unmarshal(w.Body.Bytes(), &job) == nil && job.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestCreateAndDownload(t *testing.T) {
	_, h := newTestServer(t, &fakeRunner{})

	w := do(t, h, http.MethodPost, "/api/srs", createReq{Description: "A library system", Author: "Alice", OutputName: "../../library"})
	require.Equal(t, http.StatusAccepted, w.Code)
	created := decodeJob(t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "library.docx", created.OutputName)
	assert.Equal(t, "/api/srs/"+created.ID, w.Header().Get("Location"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	job := waitStatus(t, h, created.ID, JobSucceeded)
	assert.NotNil(t, job.FinishedAt)
	require.NotNil(t, job.Report)

	doc := do(t, h, http.MethodGet, "/api/srs/"+created.ID+"/document", nil)
	require.Equal(t, http.StatusOK, doc.Code)
	assert.Equal(t, "docx-bytes", doc.Body.String())
	assert.Contains(t, doc.Header().Get("Content-Disposition"), "library.docx")

	preview := do(t, h, http.MethodGet, "/api/srs/"+created.ID+"/preview", nil)
	require.Equal(t, http.StatusOK, preview.Code)
	assert.Contains(t, preview.Body.String(), "Introduction")

	var list struct{ Jobs []Job }
	require.NoError(t, json.Unmarshal(do(t, h, http.MethodGet, "/api/srs", nil).Body.Bytes(), &list))
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, created.ID, list.Jobs[0].ID)
}

func TestCreateRejectsIncompleteBrief(t *testing.T) {
	_, h := newTestServer(t, &fakeRunner{})

	w := do(t, h, http.MethodPost, "/api/srs", createReq{Description: "   ", Author: "Alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), srs.ErrIncompleteBrief.Error())

	req := httptest.NewRequest(http.MethodPost, "/api/srs", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentBeforeFinishIsConflict(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	_, h := newTestServer(t, runner)

	created := decodeJob(t, do(t, h, http.MethodPost, "/api/srs", createReq{Description: "d", Author: "a"}))
	waitStatus(t, h, created.ID, JobRunning)

	w := do(t, h, http.MethodGet, "/api/srs/"+created.ID+"/document", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(runner.release)
	waitStatus(t, h, created.ID, JobSucceeded)
}

func TestJobsQueueBehindLimit(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	_, h := newTestServer(t, runner)

	first := decodeJob(t, do(t, h, http.MethodPost, "/api/srs", createReq{Description: "d", Author: "a"}))
	waitStatus(t, h, first.ID, JobRunning)
	second := decodeJob(t, do(t, h, http.MethodPost, "/api/srs", createReq{Description: "d", Author: "a"}))
	assert.Equal(t, JobQueued, decodeJob(t, do(t, h, http.MethodGet, "/api/srs/"+second.ID, nil)).Status)

	close(runner.release)
	waitStatus(t, h, first.ID, JobSucceeded)
	waitStatus(t, h, second.ID, JobSucceeded)
}

func TestFailedJob(t *testing.T) {
	_, h := newTestServer(t, &fakeRunner{err: pipeline.ErrTitlePage})

	created := decodeJob(t, do(t, h, http.MethodPost, "/api/srs", createReq{Description: "d", Author: "a"}))
	job := waitStatus(t, h, created.ID, JobFailed)
	assert.Contains(t, job.Error, pipeline.ErrTitlePage.Error())

	w := do(t, h, http.MethodGet, "/api/srs/"+created.ID+"/document", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFactoryErrorFailsJob(t *testing.T) {
	s, err := New(func(string) (Runner, error) { return nil, errors.New("no llm") }, Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	h := s.Routes()

	created := decodeJob(t, do(t, h, http.MethodPost, "/api/srs", createReq{Description: "d", Author: "a"}))
	job := waitStatus(t, h, created.ID, JobFailed)
	assert.Equal(t, "no llm", job.Error)
}

func TestCloseCancelsQueuedJobs(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	s, h := newTestServer(t, runner)

	first := decodeJob(t, do(t, h, http.MethodPost, "/api/srs", createReq{Description: "d", Author: "a"}))
	waitStatus(t, h, first.ID, JobRunning)
	second := decodeJob(t, do(t, h, http.MethodPost, "/api/srs", createReq{Description: "d", Author: "a"}))

	s.Close()
	assert.Equal(t, JobFailed, decodeJob(t, do(t, h, http.MethodGet, "/api/srs/"+first.ID, nil)).Status)
	assert.Equal(t, JobFailed, decodeJob(t, do(t, h, http.MethodGet, "/api/srs/"+second.ID, nil)).Status)
}

func TestJobTimeoutFailsJob(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	s, err := New(func(string) (Runner, error) { return runner, nil }, Options{
		OutputDir:  t.TempDir(),
		JobTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	h := s.Routes()

	created := decodeJob(t, do(t, h, http.MethodPost, "/api/srs", createReq{Description: "d", Author: "a"}))
	job := waitStatus(t, h, created.ID, JobFailed)
	assert.Contains(t, job.Error, context.DeadlineExceeded.Error())
}

func TestUnknownJob(t *testing.T) {
	_, h := newTestServer(t, &fakeRunner{})
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/srs/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/srs/nope/document", nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	_, h := newTestServer(t, &fakeRunner{})
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)

	w := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "srsgen_http_requests_total")
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"":                 "srs",
		"library":          "library",
		"../../etc/passwd": "passwd",
		`C:\docs\app.docx`: "app.docx",
		"My Project":       "My_Project",
		"..":               "srs",
	}
	for in, want := range tests {
		assert.Equal(t, want, outputName(in), in)
	}
}
