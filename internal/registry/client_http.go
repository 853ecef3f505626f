package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"civitas/internal/identity"
	"civitas/pkg/platform/sentinel"
)

// HTTPStore is a Store adapter over a remote identity registry's REST API.
// Used when the registry is operated as a separate service.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates an adapter for the registry at baseURL. All calls
// share a single timeout; the caller's context can shorten it further.
func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) Status(ctx context.Context, citizenID string) (*SessionStatus, error) {
	var status SessionStatus
	if err := s.get(ctx, "/citizens/"+url.PathEscape(citizenID)+"/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *HTTPStore) Citizen(ctx context.Context, citizenID string) (*identity.CitizenIdentity, error) {
	var c identity.CitizenIdentity
	if err := s.get(ctx, "/citizens/"+url.PathEscape(citizenID), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *HTTPStore) PutCitizen(ctx context.Context, c *identity.CitizenIdentity) error {
	return s.put(ctx, "/citizens/"+url.PathEscape(c.CitizenID), c)
}

func (s *HTTPStore) Credential(ctx context.Context, citizenID string) (*identity.StoredCredential, error) {
	var cred identity.StoredCredential
	if err := s.get(ctx, "/credentials/"+url.PathEscape(citizenID), &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *HTTPStore) PutCredential(ctx context.Context, citizenID string, cred *identity.StoredCredential) error {
	return s.put(ctx, "/credentials/"+url.PathEscape(citizenID), cred)
}

func (s *HTTPStore) UpdateSignCounter(ctx context.Context, citizenID string, counter uint32) error {
	body := struct {
		SignCounter uint32 `json:"sign_counter"`
	}{SignCounter: counter}
	return s.put(ctx, "/credentials/"+url.PathEscape(citizenID)+"/sign-counter", body)
}

func (s *HTTPStore) Grant(ctx context.Context, grantID string) (*GrantRecord, error) {
	var g GrantRecord
	if err := s.get(ctx, "/grants/"+url.PathEscape(grantID), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *HTTPStore) PutGrant(ctx context.Context, g *GrantRecord) error {
	return s.put(ctx, "/grants/"+url.PathEscape(g.GrantID), g)
}

func (s *HTTPStore) AppendLedger(ctx context.Context, e *LedgerEntry) error {
	return s.post(ctx, "/citizens/"+url.PathEscape(e.CitizenID)+"/ledger", e)
}

func (s *HTTPStore) Ledger(ctx context.Context, citizenID string) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	if err := s.get(ctx, "/citizens/"+url.PathEscape(citizenID)+"/ledger", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *HTTPStore) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: registry unreachable: %v", sentinel.ErrUnavailable, err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: registry health returned %d", sentinel.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: registry unreachable: %v", sentinel.ErrUnavailable, err)
	}
	defer drain(resp)
	if err := statusError(resp.StatusCode); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode registry response: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *HTTPStore) put(ctx context.Context, path string, body any) error {
	return s.send(ctx, http.MethodPut, path, body)
}

func (s *HTTPStore) post(ctx context.Context, path string, body any) error {
	return s.send(ctx, http.MethodPost, path, body)
}

func (s *HTTPStore) send(ctx context.Context, method, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode registry request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: registry unreachable: %v", sentinel.ErrUnavailable, err)
	}
	defer drain(resp)
	return statusError(resp.StatusCode)
}

// statusError maps registry HTTP statuses onto sentinel errors. 404 is the
// only status treated as a definitive miss; everything else non-2xx means
// the registry could not answer.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return sentinel.ErrNotFound
	case code == http.StatusConflict:
		return sentinel.ErrConflict
	default:
		return fmt.Errorf("%w: registry returned %d", sentinel.ErrUnavailable, code)
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
