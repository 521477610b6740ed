package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/itemmeta"
	"github.com/erauner12/syncengine-go/internal/model"
)

// HTTPClient is the production RemoteClient implementation: it speaks the
// per-table CRUD/query wire protocol over an authenticated, retrying
// transport, parameterized by table name instead of one Go type per
// entity.
type HTTPClient struct {
	baseURL   string
	transport *httpTransport
}

// NewHTTPClient creates a production-mode client authenticated via
// TokenProvider + SessionManager.
func NewHTTPClient(baseURL string, tokenProvider TokenProvider, sessionMgr *SessionManager, audience string) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		transport: newHTTPTransport(baseURL, tokenProvider, sessionMgr, audience, ""),
	}
}

// NewDevHTTPClient creates a dev-mode client authenticated via X-Debug-Sub,
// for local use against synctest.Server.
func NewDevHTTPClient(baseURL string, sessionMgr *SessionManager, debugSub string) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		transport: newHTTPTransport(baseURL, nil, sessionMgr, "", debugSub),
	}
}

func (c *HTTPClient) TableInsert(ctx context.Context, tableName string, item model.Item, _ Features) (model.Item, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(tableName), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.transport.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeItemOrError(resp)
}

func (c *HTTPClient) TableUpdate(ctx context.Context, tableName string, item model.Item, _ Features) (model.Item, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s", c.tableURL(tableName), item.ID())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-Match", strconv.Itoa(itemmeta.Version(item)))

	resp, err := c.transport.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeItemOrError(resp)
}

func (c *HTTPClient) TableDelete(ctx context.Context, tableName string, item model.Item, _ Features) error {
	reqURL := fmt.Sprintf("%s/%s", c.tableURL(tableName), item.ID())
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("If-Match", strconv.Itoa(itemmeta.Version(item)))

	resp, err := c.transport.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	_, err = decodeItemOrError(resp)
	return err
}

func (c *HTTPClient) TableRead(ctx context.Context, q datasource.Query, _ Features) (Page, error) {
	params := url.Values{}
	for k, v := range q.Parameters {
		params.Set(k, v)
	}
	if q.Top > 0 {
		params.Set("top", strconv.Itoa(q.Top))
	}
	if q.FetchOffset > 0 {
		params.Set("skip", strconv.Itoa(q.FetchOffset))
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.OrderDesc {
			dir = "desc"
		}
		params.Set("orderby", q.OrderBy+" "+dir)
	}

	reqURL := fmt.Sprintf("%s?%s", c.tableURL(q.TableName), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Page{}, err
	}

	resp, err := c.transport.do(ctx, req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, classifyErrorResponse(resp)
	}

	var body struct {
		Items      []model.Item `json:"items"`
		TotalCount int          `json:"totalCount,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Page{}, fmt.Errorf("decode page: %w", err)
	}
	return Page{Items: body.Items, TotalCount: body.TotalCount}, nil
}

func (c *HTTPClient) tableURL(tableName string) string {
	return fmt.Sprintf("%s/v1/tables/%s", c.baseURL, tableName)
}

func decodeItemOrError(resp *http.Response) (model.Item, error) {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var item model.Item
		if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		return item, nil
	default:
		return nil, classifyErrorResponse(resp)
	}
}

func classifyErrorResponse(resp *http.Response) error {
	var body struct {
		Error   string         `json:"error"`
		Version int            `json:"version"`
		Item    map[string]any `json:"item"`
		Message string         `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusPreconditionFailed, http.StatusConflict:
		return &ConflictError{ServerVersion: body.Version, ServerItem: body.Item}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Err: fmt.Errorf("%s", nonEmpty(body.Message, "unauthorized"))}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{Message: nonEmpty(body.Message, "validation failed")}
	case 0:
		return &TransportError{Err: fmt.Errorf("empty response")}
	default:
		return &TransportError{Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body.Message)}
	}
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
