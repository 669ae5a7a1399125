package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dasmlab/ponte/pkg/service"
	"github.com/dasmlab/ponte/pkg/translate"
)

type modelFunc func(text string) ([]string, error)

func (f modelFunc) Translate(text string) ([]string, error) { return f(text) }

func loaderOf(fn modelFunc) translate.Loader {
	return translate.LoaderFunc(func(translate.Direction, translate.ModelPaths) (translate.Model, error) {
		return fn, nil
	})
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type testEnv struct {
	svc    *service.TranslationService
	jobs   *service.JobQueue
	server *httptest.Server
}

func newTestEnv(t *testing.T, cfg service.Config) *testEnv {
	t.Helper()
	cfg.Logger = quietLogger()
	svc := service.NewTranslationService(cfg)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	jobs := service.NewJobQueue(cfg.Logger)
	jobs.SetProcessor(service.NewJobProcessor(svc, 0, time.Minute, cfg.Logger))

	h := NewHTTPServer(svc, jobs, cfg.Logger, HTTPConfig{WriteTimeout: time.Minute})
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{svc: svc, jobs: jobs, server: srv}
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func upper(text string) ([]string, error) {
	return strings.Fields(strings.ToUpper(text)), nil
}

func TestTranslateEndpoint(t *testing.T) {
	env := newTestEnv(t, service.Config{Loader: loaderOf(upper)})

	resp := env.post(t, "/translate", `{"text":"Ciao, come stai?","fromLanguage":"Italian"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out translationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "CIAO, COME STAI?", out.Translation)
}

func TestTranslateEndpointBadRequests(t *testing.T) {
	env := newTestEnv(t, service.Config{Loader: loaderOf(upper)})

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"text":`},
		{name: "missing text", body: `{"fromLanguage":"English"}`},
		{name: "unsupported language", body: `{"text":"hola","fromLanguage":"Spanish"}`},
		{name: "missing language", body: `{"text":"hola"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/translate", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestTranslateEndpointMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, service.Config{Loader: loaderOf(upper)})

	resp := env.get(t, "/translate")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTranslateEndpointInternalError(t *testing.T) {
	env := newTestEnv(t, service.Config{Loader: loaderOf(func(string) ([]string, error) {
		return nil, errors.New("tensor shape mismatch")
	})})

	resp := env.post(t, "/translate", `{"text":"hello","fromLanguage":"English"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := readBody(t, resp)
	assert.True(t, strings.HasPrefix(body, "An unspecified internal error occurred: "), body)
	assert.Contains(t, body, "tensor shape mismatch")
}

func TestTranslateEndpointQueueFull(t *testing.T) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	env := newTestEnv(t, service.Config{
		QueueSize:    1,
		Backpressure: translate.BackpressureReject,
		Loader: loaderOf(func(text string) ([]string, error) {
			started <- struct{}{}
			<-release
			return []string{text}, nil
		}),
	})
	defer close(release)

	go func() { _, _ = env.svc.Translate(context.Background(), "first", translate.English) }()
	<-started

	// A probe that lands in the queue times out and leaves it full.
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := env.svc.Translate(ctx, "probe", translate.English)
		return errors.Is(err, translate.ErrQueueFull)
	}, 2*time.Second, 5*time.Millisecond)

	resp := env.post(t, "/translate", `{"text":"hello","fromLanguage":"English"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestOpenAPIDocument(t *testing.T) {
	env := newTestEnv(t, service.Config{Loader: loaderOf(upper)})

	resp := env.get(t, "/openapi.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.True(t, strings.HasPrefix(doc.OpenAPI, "3."))
	assert.Contains(t, doc.Paths, "/translate")
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, service.Config{Loader: loaderOf(upper)})
	require.NoError(t, env.svc.Ready(context.Background()))

	resp := env.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, map[string]string{"en-it": "ready", "it-en": "ready"}, health.Translators)
}

func TestHealthEndpointUnavailable(t *testing.T) {
	loader := translate.LoaderFunc(func(translate.Direction, translate.ModelPaths) (translate.Model, error) {
		return nil, errors.New("missing weights")
	})
	env := newTestEnv(t, service.Config{Loader: loader})
	require.Error(t, env.svc.Ready(context.Background()))

	resp := env.get(t, "/health")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "unavailable", health.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, service.Config{Loader: loaderOf(upper)})
	_, err := env.svc.Translate(context.Background(), "hello", translate.English)
	require.NoError(t, err)

	resp := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "ponte_translation_requests_total")
}

func TestJobEndpoints(t *testing.T) {
	env := newTestEnv(t, service.Config{Loader: loaderOf(upper)})

	resp := env.post(t, "/api/v1/jobs", `{"requestId":"doc-7","text":"buongiorno","fromLanguage":"it"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created service.JobSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/v1/jobs/"+created.ID, resp.Header.Get("Location"))
	assert.Equal(t, "doc-7", created.RequestID)

	env.jobs.Wait()

	resp = env.get(t, "/api/v1/jobs/"+created.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap service.JobSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, service.JobStatusCompleted, snap.Status)
	assert.Equal(t, "BUONGIORNO", snap.Translation)
}

func TestJobEndpointErrors(t *testing.T) {
	env := newTestEnv(t, service.Config{Loader: loaderOf(upper)})

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/v1/jobs/unknown").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/v1/jobs/unknown/events").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.post(t, "/api/v1/jobs", `{"fromLanguage":"it"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.post(t, "/api/v1/jobs", `{"text":"x","fromLanguage":"fr"}`).StatusCode)
}

func TestJobEventsStream(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, service.Config{Loader: loaderOf(func(text string) ([]string, error) {
		<-release
		return upper(text)
	})})

	job, err := env.jobs.CreateJob(service.JobRequest{Text: "hello world", FromLanguage: translate.English})
	require.NoError(t, err)

	resp := env.get(t, "/api/v1/jobs/"+job.ID+"/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	close(release)

	// The stream ends after the terminal event.
	var events []service.JobSnapshot
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var snap service.JobSnapshot
			require.NoError(t, json.Unmarshal([]byte(data), &snap))
			events = append(events, snap)
		}
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, service.JobStatusCompleted, last.Status)
	assert.Equal(t, "HELLO WORLD", last.Translation)
	assert.Equal(t, job.ID, last.ID)
}
