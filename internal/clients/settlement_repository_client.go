package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
)

// SettlementRepositoryClient is the oracles' HTTP client of the
// settlement-repository service. It implements interfaces.SettlementTransactionStore.
type SettlementRepositoryClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewSettlementRepositoryClient creates a new settlement repository client
func NewSettlementRepositoryClient(baseURL, token string, timeout time.Duration) *SettlementRepositoryClient {
	if baseURL == "" {
		baseURL = "http://localhost:8081"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SettlementRepositoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RepositoryError is a non-2xx answer of the settlement repository
type RepositoryError struct {
	StatusCode int
	Message    string
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("settlement repository returned %d: %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *SettlementRepositoryClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("settlement repository request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)
		msg := eb.Message
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		repoErr := &RepositoryError{StatusCode: resp.StatusCode, Message: msg}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", interfaces.ErrSettlementTransactionNotFound, repoErr)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", interfaces.ErrSettlementTransactionExists, repoErr)
		}
		return repoErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *SettlementRepositoryClient) Create(ctx context.Context, st *models.SettlementTransaction) (*models.SettlementTransaction, error) {
	var created models.SettlementTransaction
	if err := c.do(ctx, http.MethodPost, "/api/settlement-transactions", nil, st, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *SettlementRepositoryClient) CreateBatch(ctx context.Context, sts []*models.SettlementTransaction) ([]*models.SettlementTransaction, error) {
	var created []*models.SettlementTransaction
	if err := c.do(ctx, http.MethodPost, "/api/settlement-transactions/batch", nil, sts, &created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *SettlementRepositoryClient) GetByID(ctx context.Context, id string) (*models.SettlementTransaction, error) {
	var st models.SettlementTransaction
	if err := c.do(ctx, http.MethodGet, "/api/settlement-transactions/"+url.PathEscape(id), nil, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *SettlementRepositoryClient) list(ctx context.Context, query url.Values) ([]*models.SettlementTransaction, error) {
	var sts []*models.SettlementTransaction
	if err := c.do(ctx, http.MethodGet, "/api/settlement-transactions", query, nil, &sts); err != nil {
		return nil, err
	}
	return sts, nil
}

func (c *SettlementRepositoryClient) GetByPaymentReference(ctx context.Context, ref string) ([]*models.SettlementTransaction, error) {
	return c.list(ctx, url.Values{"paymentReference": {ref}})
}

func (c *SettlementRepositoryClient) GetByInstrument(ctx context.Context, ledger models.Ledger, address string) ([]*models.SettlementTransaction, error) {
	query := url.Values{"ledger": {string(ledger)}}
	if address != "" {
		query.Set("instrumentAddress", address)
	}
	return c.list(ctx, query)
}

func (c *SettlementRepositoryClient) GetByTimeRange(ctx context.Context, begin, end time.Time) ([]*models.SettlementTransaction, error) {
	return c.list(ctx, url.Values{
		"begin": {begin.UTC().Format(time.RFC3339Nano)},
		"end":   {end.UTC().Format(time.RFC3339Nano)},
	})
}
