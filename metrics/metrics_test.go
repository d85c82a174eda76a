package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	SectionTotal.WithLabelValues("introduction", "generated").Inc()
	DiagramTotal.WithLabelValues("ClassDiagram", "render", "ok").Inc()

	path := filepath.Join(t.TempDir(), "srsgen.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `srsgen_pipeline_section_total{outcome="generated",section="introduction"}`)
	assert.Contains(t, string(data), `srsgen_diagram_total{kind="ClassDiagram",stage="render",status="ok"}`)
}

func TestHandler(t *testing.T) {
	LLMCallTotal.WithLabelValues("mock", "", "success").Inc()

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "srsgen_llm_call_total")
}
