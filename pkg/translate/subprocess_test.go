package translate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It stands in for the Argos worker
// script when re-executed by the subprocess tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PONTE_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	dec := json.NewDecoder(os.Stdin)
	enc := json.NewEncoder(os.Stdout)
	var loaded workerMessage
	for {
		var msg workerMessage
		if err := dec.Decode(&msg); err != nil {
			return
		}
		switch msg.Op {
		case "load":
			if os.Getenv("PONTE_HELPER_FAIL_LOAD") == "1" {
				enc.Encode(workerReply{Error: "no weights in " + msg.ModelDir})
				continue
			}
			loaded = msg
			enc.Encode(workerReply{Success: true})
		case "translate":
			switch msg.Text {
			case "hang":
				time.Sleep(time.Hour)
			case "broken":
				enc.Encode(workerReply{Error: "decoder error"})
				continue
			}
			enc.Encode(workerReply{
				Success:  true,
				Segments: []string{loaded.SourceLang + ">" + loaded.TargetLang, strings.ToUpper(msg.Text)},
			})
		}
	}
}

func helperConfig(env ...string) SubprocessConfig {
	return SubprocessConfig{
		Command:        []string{os.Args[0], "-test.run=TestHelperProcess", "--"},
		Env:            append([]string{"PONTE_WANT_HELPER_PROCESS=1"}, env...),
		LoadTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

func modelBase(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	for _, d := range Directions {
		require.NoError(t, os.MkdirAll(filepath.Join(base, d.ModelDir()), 0o755))
	}
	return base
}

func TestSubprocessModelThroughActor(t *testing.T) {
	a := spawnTest(t, ItalianToEnglish, ActorConfig{
		BasePath: modelBase(t),
		Loader:   NewSubprocessLoader(helperConfig(), quietLogger()),
	})

	segments, err := a.Translate(t.Context(), "ciao mondo")
	require.NoError(t, err)
	assert.Equal(t, []string{"it>en", "CIAO MONDO"}, segments)

	_, err = a.Translate(t.Context(), "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResource)
	assert.Contains(t, err.Error(), "decoder error")

	require.NoError(t, a.Stop())
}

func TestSubprocessLoadFailure(t *testing.T) {
	a := spawnTest(t, EnglishToItalian, ActorConfig{
		BasePath: modelBase(t),
		Loader:   NewSubprocessLoader(helperConfig("PONTE_HELPER_FAIL_LOAD=1"), quietLogger()),
	})

	err := a.Ready(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no weights in")
	assert.ErrorIs(t, a.Stop(), ErrResource)
}

func TestSubprocessMissingModelDir(t *testing.T) {
	loader := NewSubprocessLoader(helperConfig(), quietLogger())
	_, err := loader.Load(EnglishToItalian, ResolveModelPaths(t.TempDir(), EnglishToItalian))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model directory")
}

func TestSubprocessRequestTimeout(t *testing.T) {
	cfg := helperConfig()
	cfg.RequestTimeout = 200 * time.Millisecond
	loader := NewSubprocessLoader(cfg, quietLogger())

	m, err := loader.Load(EnglishToItalian, ResolveModelPaths(modelBase(t), EnglishToItalian))
	require.NoError(t, err)
	sm := m.(*SubprocessModel)
	defer sm.Close()

	_, err = sm.Translate("hang")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
