package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultLibreTranslateURL is the default base URL for LibreTranslate API.
	DefaultLibreTranslateURL = "http://localhost:5000"
	// DefaultLibreTranslateTimeout is the default timeout for HTTP requests.
	// Large documents can take minutes to translate.
	DefaultLibreTranslateTimeout = 5 * time.Minute
)

// LibreTranslateModel is a Model served by a LibreTranslate instance.
// The "load" step only verifies that the server offers both languages;
// the weights live in the LibreTranslate process.
type LibreTranslateModel struct {
	baseURL    string
	source     Language
	target     Language
	httpClient *http.Client
	timeout    time.Duration
	logger     *logrus.Entry
}

// translateRequest represents a LibreTranslate API request.
type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"` // e.g., "en"
	Target string `json:"target"` // e.g., "it"
	Format string `json:"format"` // "text" or "html"
}

// translateResponse represents a LibreTranslate API response.
type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

// languagesResponse represents one entry of the /languages endpoint.
type languagesResponse struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// NewLibreTranslateLoader returns a Loader that binds each direction to the
// LibreTranslate server at baseURL.
func NewLibreTranslateLoader(baseURL string, timeout time.Duration, logger *logrus.Logger) Loader {
	if baseURL == "" {
		baseURL = DefaultLibreTranslateURL
	}
	if timeout <= 0 {
		timeout = DefaultLibreTranslateTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return LoaderFunc(func(direction Direction, _ ModelPaths) (Model, error) {
		m := &LibreTranslateModel{
			baseURL:    baseURL,
			source:     direction.Source(),
			target:     direction.Target(),
			httpClient: &http.Client{Timeout: timeout},
			timeout:    timeout,
			logger: logger.WithFields(logrus.Fields{
				"engine":    EngineLibreTranslate,
				"direction": direction.String(),
			}),
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		codes, err := m.SupportedLanguages(ctx)
		if err != nil {
			return nil, err
		}
		for _, want := range []Language{m.source, m.target} {
			if !containsCode(codes, string(want)) {
				return nil, fmt.Errorf("libretranslate at %s does not support %q", baseURL, want)
			}
		}
		return m, nil
	})
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// Translate posts text to LibreTranslate and returns the non-empty lines of
// the translation as segments.
func (m *LibreTranslateModel) Translate(text string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.WithField("text_length", len(text)).Debug("Translating text with LibreTranslate")

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(&translateRequest{
		Q:      text,
		Source: string(m.source),
		Target: string(m.target),
		Format: "text",
	}); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := m.baseURL + "/translate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.WithError(err).WithField("url", url).Error("Translation request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		m.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(bodyBytes),
		}).Error("Translation request returned non-OK status")
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var ltResp translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ltResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	m.logger.WithField("duration_ms", time.Since(startTime).Milliseconds()).Debug("Translation request completed")

	return splitLines(ltResp.TranslatedText), nil
}

func splitLines(text string) []string {
	var segments []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			segments = append(segments, line)
		}
	}
	return segments
}

// SupportedLanguages returns the language codes offered by the server.
func (m *LibreTranslateModel) SupportedLanguages(ctx context.Context) ([]string, error) {
	url := m.baseURL + "/languages"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create languages request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.WithError(err).WithField("url", url).Error("Failed to fetch supported languages")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var languages []languagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&languages); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	codes := make([]string, 0, len(languages))
	for _, lang := range languages {
		codes = append(codes, lang.Code)
	}

	m.logger.WithField("count", len(codes)).Debug("Fetched supported languages")
	return codes, nil
}
