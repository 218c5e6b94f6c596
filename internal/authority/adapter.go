// Package authority defines the adapter boundary to external
// verification authorities. Adapters are read-only collaborators; their
// data formats are opaque beyond the Result shape.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"credverify/internal/domain"
)

// Result is the outcome of one authority query. Found=false means the
// authority answered and reported no matching record, which is a valid
// verification result, not a failure.
type Result struct {
	Found  bool
	Record map[string]any
}

type Adapter interface {
	Name() string
	Query(ctx context.Context, params map[string]string) (Result, error)
}

// QueryError reports an authority that answered with a failure or
// produced data the adapter could not decode. StatusCode is zero when
// the authority was unreachable.
type QueryError struct {
	Authority  string
	StatusCode int
	Detail     string
	Err        error
}

func (e *QueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authority %s returned status %d: %s", e.Authority, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("authority %s unavailable: %v", e.Authority, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// HTTPAdapter queries one authority endpoint over HTTP. The endpoint is
// expected to answer GET requests with a JSON object body; 404 maps to a
// not-found Result.
type HTTPAdapter struct {
	name       string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPAdapter(name, baseURL string, timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPAdapter{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

func (a *HTTPAdapter) Name() string {
	return a.name
}

func (a *HTTPAdapter) Query(ctx context.Context, params map[string]string) (Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := a.baseURL
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, &QueryError{Authority: a.name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Result{}, &QueryError{Authority: a.name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &QueryError{Authority: a.name, Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return Result{Found: false}, nil
	}
	if resp.StatusCode >= 400 {
		return Result{}, &QueryError{
			Authority:  a.name,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(body)),
		}
	}

	var record map[string]any
	if err := json.Unmarshal(body, &record); err != nil {
		return Result{}, &QueryError{
			Authority:  a.name,
			StatusCode: resp.StatusCode,
			Detail:     "malformed response body",
			Err:        err,
		}
	}
	return Result{Found: true, Record: record}, nil
}

// Directory maps each step kind to its authority adapter. Built once at
// startup alongside the step catalog; read-only thereafter.
type Directory struct {
	adapters map[domain.StepName]Adapter
}

func NewDirectory(adapters map[domain.StepName]Adapter) *Directory {
	copied := make(map[domain.StepName]Adapter, len(adapters))
	for step, adapter := range adapters {
		copied[step] = adapter
	}
	return &Directory{adapters: copied}
}

func (d *Directory) For(step domain.StepName) (Adapter, bool) {
	adapter, ok := d.adapters[step]
	return adapter, ok
}

// StepPaths names the gateway path serving each step kind. A Directory
// for a single aggregator gateway is built by joining the gateway base
// URL with these paths.
var StepPaths = map[domain.StepName]string{
	domain.StepIdentifierLookup:       "npi",
	domain.StepControlledSubstanceReg: "dea",
	domain.StepStateLicense:           "license",
	domain.StepBoardCertification:     "board",
	domain.StepMasterExclusionFile:    "exclusions",
	domain.StepFederalInsuranceProg:   "medicare",
	domain.StepMalpracticeHistory:     "malpractice",
	domain.StepDataBankQuery:          "databank",
	domain.StepSanctionsExclusion:     "sanctions",
	domain.StepEducationCredential:    "education",
	domain.StepHospitalPrivilege:      "privileges",
}

// NewGatewayDirectory builds adapters for every step kind against one
// aggregator gateway.
func NewGatewayDirectory(gatewayBaseURL string, timeout time.Duration) *Directory {
	base := strings.TrimRight(gatewayBaseURL, "/")
	adapters := make(map[domain.StepName]Adapter, len(StepPaths))
	for step, path := range StepPaths {
		adapters[step] = NewHTTPAdapter(string(step), base+"/"+path, timeout)
	}
	return NewDirectory(adapters)
}
