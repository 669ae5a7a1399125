package translate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLibreTranslateServer(t *testing.T, languages []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /languages", func(w http.ResponseWriter, r *http.Request) {
		resp := make([]languagesResponse, 0, len(languages))
		for _, code := range languages {
			resp = append(resp, languagesResponse{Code: code, Name: code})
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /translate", func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Q == "fail" {
			http.Error(w, `{"error":"model crashed"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(translateResponse{
			TranslatedText: "[" + req.Source + ">" + req.Target + "] " + req.Q + "\n\nsecond line\n",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLibreTranslateModel(t *testing.T) {
	srv := newLibreTranslateServer(t, []string{"en", "it", "fr"})
	loader := NewLibreTranslateLoader(srv.URL+"/", time.Second, quietLogger())

	m, err := loader.Load(EnglishToItalian, ModelPaths{})
	require.NoError(t, err)

	segments, err := m.Translate("hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"[en>it] hello", "second line"}, segments)

	_, err = m.Translate("fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestLibreTranslateLoadRequiresLanguages(t *testing.T) {
	srv := newLibreTranslateServer(t, []string{"en", "fr"})
	loader := NewLibreTranslateLoader(srv.URL, time.Second, quietLogger())

	_, err := loader.Load(ItalianToEnglish, ModelPaths{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"it"`)
}

func TestLibreTranslateLoadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	loader := NewLibreTranslateLoader(url, time.Second, quietLogger())
	_, err := loader.Load(EnglishToItalian, ModelPaths{})
	assert.Error(t, err)
}

func TestLibreTranslateThroughActor(t *testing.T) {
	srv := newLibreTranslateServer(t, []string{"en", "it"})
	a := spawnTest(t, ItalianToEnglish, ActorConfig{
		Loader: NewLibreTranslateLoader(srv.URL, time.Second, quietLogger()),
	})
	defer a.Stop()

	segments, err := a.Translate(t.Context(), "ciao")
	require.NoError(t, err)
	assert.Equal(t, []string{"[it>en] ciao", "second line"}, segments)
}
