package verifierd

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitbounty/native/verify"
	"gitbounty/oracle"
)

func newVerifyServer(t *testing.T, upstream *httptest.Server) http.Handler {
	t.Helper()
	cfg := Config{
		ListenAddress: ":0",
		GitHub: GitHubConfig{
			Endpoint: upstream.URL,
			Timeout:  Duration(5 * time.Second),
		},
	}
	gh := NewGitHubClient(upstream.Client(), upstream.URL)
	return NewServer(cfg, gh, nil).Router()
}

func postJob(t *testing.T, handler http.Handler, job oracle.VerifyJob) oracle.VerifyJobResult {
	t.Helper()
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result oracle.VerifyJobResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestHandleVerifySuccess(t *testing.T) {
	upstream := graphQLStub(t, true, "fixes #101", "bountyHunter69", nil)
	defer upstream.Close()
	handler := newVerifyServer(t, upstream)

	result := postJob(t, handler, oracle.VerifyJob{Args: []string{"o", "r", "42", "101"}})
	require.Empty(t, result.Error)
	require.NotEmpty(t, result.Result)

	decoded, err := hex.DecodeString(result.Result[2:])
	require.NoError(t, err)
	verified, author, err := verify.DecodeVerificationResult(decoded)
	require.NoError(t, err)
	require.True(t, verified)
	require.Equal(t, "bountyHunter69", author)
}

func TestHandleVerifyScriptErrorIsOKResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": map[string]interface{}{"repository": nil},
		}
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	defer upstream.Close()
	handler := newVerifyServer(t, upstream)

	// A missing pull request is a script failure, not a transport failure:
	// the dispatcher expects a 200 with an error payload.
	result := postJob(t, handler, oracle.VerifyJob{Args: []string{"o", "r", "42", "101"}})
	require.Empty(t, result.Result)
	require.Contains(t, result.Error, "not found")
}

func TestHandleVerifyBadPayload(t *testing.T) {
	upstream := graphQLStub(t, true, "", "a", nil)
	defer upstream.Close()
	handler := newVerifyServer(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, ":8090", cfg.ListenAddress)
	require.Equal(t, "https://api.github.com/graphql", cfg.GitHub.Endpoint)
	require.Equal(t, "GITHUB_TOKEN", cfg.GitHub.TokenEnv)
	require.Equal(t, 15*time.Second, cfg.GitHub.Timeout.Std())

	// A missing file keeps the defaults.
	cfg, err = LoadConfig("/does/not/exist.yaml")
	require.NoError(t, err)
	require.Equal(t, ":8090", cfg.ListenAddress)
}

func writeYAMLConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "verifierd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigHumanReadableTimeout(t *testing.T) {
	cfg, err := LoadConfig(writeYAMLConfig(t, `
listen: ":9090"
github:
  endpoint: "http://ghe.internal/graphql"
  timeout: 30s
`))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, 30*time.Second, cfg.GitHub.Timeout.Std())

	// Raw nanosecond integers stay accepted.
	cfg, err = LoadConfig(writeYAMLConfig(t, `
github:
  timeout: 5000000000
`))
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.GitHub.Timeout.Std())

	// Garbage fails loudly instead of silently defaulting.
	_, err = LoadConfig(writeYAMLConfig(t, `
github:
  timeout: soon
`))
	require.Error(t, err)
}
