package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avoronin/paperkeep/internal/client/models"
	"github.com/avoronin/paperkeep/internal/common"
	"github.com/sethvargo/go-retry"
)

// TokenSource supplies the current bearer token, or an empty string when the
// client is not logged in.
type TokenSource func(ctx context.Context) (string, error)

// HTTPClient implements API against the REST authority.
//
// Transient failures of idempotent requests are retried in-flight a bounded
// number of times with fibonacci backoff; after that the classified error
// propagates and the outbox owns any further retrying across push cycles.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   TokenSource

	// maxAttempts bounds in-flight retries per request (first try included).
	maxAttempts uint64
	backoffBase time.Duration
}

// NewHTTPClient returns a client for the authority at baseURL (no trailing
// slash). token may be nil for an unauthenticated client.
func NewHTTPClient(baseURL string, token TokenSource) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		http:        &http.Client{Timeout: 30 * time.Second},
		token:       token,
		maxAttempts: 3,
		backoffBase: 250 * time.Millisecond,
	}
}

// collectionPath maps an entity type to its REST collection segment.
func collectionPath(t models.EntityType) (string, error) {
	switch t {
	case models.EntityReceipt:
		return "receipts", nil
	case models.EntityDevice:
		return "devices", nil
	case models.EntityBill:
		return "bills", nil
	case models.EntityReminder:
		return "reminders", nil
	case models.EntityDocument:
		return "documents", nil
	case models.EntitySubscription:
		return "subscriptions", nil
	case models.EntitySettings:
		return "settings", nil
	}
	return "", models.ErrUnknownEntityType
}

func (c *HTTPClient) Upsert(ctx context.Context, t models.EntityType, id string, payload json.RawMessage) error {
	path, err := collectionPath(t)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/%s/%s", c.baseURL, path, id)
	_, err = c.doIdempotent(ctx, http.MethodPut, url, payload, "upsert "+string(t), nil)
	return err
}

func (c *HTTPClient) Delete(ctx context.Context, t models.EntityType, id string) error {
	path, err := collectionPath(t)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/%s/%s", c.baseURL, path, id)
	// Deleting an id the server no longer has is a success: the retry of an
	// already-applied delete must be a no-op.
	_, err = c.doIdempotent(ctx, http.MethodDelete, url, nil, "delete "+string(t), []int{http.StatusNotFound, http.StatusGone})
	return err
}

func (c *HTTPClient) FetchCollection(ctx context.Context, t models.EntityType) ([]RemoteRecord, error) {
	path, err := collectionPath(t)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/%s", c.baseURL, path)
	body, err := c.doIdempotent(ctx, http.MethodGet, url, nil, "fetch "+string(t), nil)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Kind: KindPermanent, Op: "fetch " + string(t), Err: fmt.Errorf("malformed collection body: %w", err)}
	}

	result := make([]RemoteRecord, 0, len(raw))
	for _, obj := range raw {
		var idHolder struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(obj, &idHolder); err != nil || idHolder.ID == "" {
			return nil, &Error{Kind: KindPermanent, Op: "fetch " + string(t), Err: fmt.Errorf("record without id in collection %s", path)}
		}
		result = append(result, RemoteRecord{ID: idHolder.ID, Fields: obj})
	}
	return result, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/auth/login", body, "login", nil)
	if err != nil {
		return "", err
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp, &out); err != nil || out.Token == "" {
		return "", &Error{Kind: KindPermanent, Op: "login", Err: fmt.Errorf("malformed login response")}
	}
	return out.Token, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/health", nil, "ping", nil)
	if err != nil {
		return common.ErrUnavailable
	}
	return nil
}

func (c *HTTPClient) AttachmentPutURL(ctx context.Context, key string) (string, error) {
	body, err := c.doIdempotent(ctx, http.MethodGet, c.baseURL+"/api/attachments/presign?key="+key, nil, "presign attachment", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.URL == "" {
		return "", &Error{Kind: KindPermanent, Op: "presign attachment", Err: fmt.Errorf("malformed presign response")}
	}
	return out.URL, nil
}

// doIdempotent wraps do with bounded fibonacci-backoff retries of transient
// failures. Only idempotent requests go through here.
func (c *HTTPClient) doIdempotent(ctx context.Context, method, url string, body []byte, op string, okStatuses []int) ([]byte, error) {
	var result []byte
	b := retry.WithMaxRetries(c.maxAttempts-1, retry.NewFibonacci(c.backoffBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		out, err := c.do(ctx, method, url, body, op, okStatuses)
		if err != nil {
			if IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = out
		return nil
	})
	return result, err
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body []byte, op string, okStatuses []int) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &Error{Kind: KindPermanent, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, &Error{Kind: KindUnauthorized, Op: op, Err: err}
		}
		if token != "" {
			req.Header.Set(common.AuthHeaderName, "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Op: op, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	for _, s := range okStatuses {
		if resp.StatusCode == s {
			return data, nil
		}
	}
	return nil, &Error{
		Kind:       classifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Op:         op,
		Err:        fmt.Errorf("%s: %s", resp.Status, truncate(data, 200)),
	}
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
