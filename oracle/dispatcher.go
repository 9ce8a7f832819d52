package oracle

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"gitbounty/native/verify"
	"gitbounty/observability"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallbackHandler receives oracle results. In production this is the
// verification coordinator.
type CallbackHandler interface {
	HandleCallback(requestID [32]byte, responseBytes, errorBytes []byte) error
}

// VerifyJob is the HTTP payload posted to the verifier endpoint. The
// credential is resolved from the hosted-secret store and omitted when the
// request carries no secret reference or the reference has expired.
type VerifyJob struct {
	Args       []string `json:"args"`
	Credential string   `json:"credential,omitempty"`
}

// VerifyJobResult is the verifier endpoint's reply: either a hex-encoded
// result payload or a script-level error, never both.
type VerifyJobResult struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Dispatcher implements the verify.Transport boundary over HTTP: requests
// are acknowledged synchronously with a fresh identifier, the verification
// itself runs against the verifier endpoint on a background goroutine and
// resolves through the callback handler. Transport-level failures surface
// as error-payload callbacks, matching the at-least-once semantics the
// coordinator defends against.
type Dispatcher struct {
	client   HTTPDoer
	endpoint string
	handler  CallbackHandler
	secrets  *SecretStore
	logger   *slog.Logger
	metrics  *observability.BountyMetrics
	wg       sync.WaitGroup
}

// NewDispatcher builds a dispatcher posting jobs to the verifier endpoint.
// A nil client falls back to http.DefaultClient.
func NewDispatcher(client HTTPDoer, endpoint string, secrets *SecretStore, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if secrets == nil {
		secrets = NewSecretStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:   client,
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		secrets:  secrets,
		logger:   logger,
		metrics:  observability.Metrics(),
	}
}

// SetHandler wires the callback sink. Must be called before SendRequest.
func (d *Dispatcher) SetHandler(h CallbackHandler) { d.handler = h }

// Secrets exposes the hosted-secret store for operator refresh cycles.
func (d *Dispatcher) Secrets() *SecretStore { return d.secrets }

// Wait blocks until every in-flight job has delivered its callback. Used
// by tests and during shutdown.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// SendRequest implements verify.Transport. The identifier is a keccak256
// hash over a fresh UUID and the request arguments, unique per dispatch.
func (d *Dispatcher) SendRequest(req verify.OracleRequest) ([32]byte, error) {
	if d == nil || d.handler == nil {
		return [32]byte{}, fmt.Errorf("oracle: dispatcher callback handler not configured")
	}
	if d.endpoint == "" {
		return [32]byte{}, fmt.Errorf("oracle: verifier endpoint not configured")
	}
	salt := uuid.New()
	requestID := ethcrypto.Keccak256Hash(salt[:], []byte(strings.Join(req.Args, "\x00")))
	job := VerifyJob{Args: append([]string{}, req.Args...)}
	if req.SecretsVersion != 0 {
		if credential, ok := d.secrets.Get(req.SecretsSlot, req.SecretsVersion); ok {
			job.Credential = credential
		}
	}
	d.wg.Add(1)
	go d.run(requestID, job)
	return requestID, nil
}

func (d *Dispatcher) run(requestID [32]byte, job VerifyJob) {
	defer d.wg.Done()
	started := time.Now()
	response, errBytes := d.execute(job)
	d.metrics.CallbackLatency.Observe(time.Since(started).Seconds())
	if err := d.handler.HandleCallback(requestID, response, errBytes); err != nil {
		d.logger.Error("oracle callback rejected",
			"requestId", hex.EncodeToString(requestID[:]),
			"err", err)
	}
}

func (d *Dispatcher) execute(job VerifyJob) ([]byte, []byte) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, []byte(fmt.Sprintf("encode job: %v", err))
	}
	httpReq, err := http.NewRequest(http.MethodPost, d.endpoint+"/v1/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, []byte(fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, []byte(fmt.Sprintf("verifier unreachable: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, []byte(fmt.Sprintf("read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, []byte(fmt.Sprintf("verifier status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	var result VerifyJobResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, []byte(fmt.Sprintf("decode response: %v", err))
	}
	if result.Error != "" {
		return nil, []byte(result.Error)
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(result.Result, "0x"))
	if err != nil {
		return nil, []byte(fmt.Sprintf("decode result payload: %v", err))
	}
	return decoded, nil
}
