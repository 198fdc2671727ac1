package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Parse error code for a missing object
const parseCodeObjectNotFound = 101

// ErrCircuitOpen is returned while the Parse circuit breaker is open
var ErrCircuitOpen = gobreaker.ErrOpenState

// Circuit breaker settings for the Parse server
const (
	parseMinRequests     = 5
	parseFailureRatio    = 0.6
	parseOpenTimeout     = 30 * time.Second
	parseHalfOpenMaxReqs = 2
	parseCountInterval   = 60 * time.Second
)

// ParseError is a non-success response from the Parse server
type ParseError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse server returned %d (code %d): %s", e.Status, e.Code, e.Message)
}

// NotFound reports whether the error means the object does not exist
func (e *ParseError) NotFound() bool {
	return e.Status == http.StatusNotFound || e.Code == parseCodeObjectNotFound
}

// ParseConfig configures a ParseStore
type ParseConfig struct {
	URL               string
	AppID             string
	RestKey           string
	RequestsPerSecond int
	Timeout           time.Duration
	HTTPClient        *http.Client // optional, mostly for tests
}

// ParseStore talks to a Parse Server REST API
type ParseStore struct {
	baseURL    string
	appID      string
	restKey    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// NewParseStore creates a Parse REST client
func NewParseStore(config ParseConfig) (*ParseStore, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("parse server URL is required")
	}
	if config.AppID == "" || config.RestKey == "" {
		return nil, fmt.Errorf("parse application id and REST key are required")
	}

	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 20
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	logger := log.With().Str("component", "parse_store").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "parse",
		MaxRequests: parseHalfOpenMaxReqs,
		Interval:    parseCountInterval,
		Timeout:     parseOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= parseMinRequests && failureRatio >= parseFailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &ParseStore{
		baseURL:    strings.TrimRight(config.URL, "/"),
		appID:      config.AppID,
		restKey:    config.RestKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.RequestsPerSecond),
		breaker:    breaker,
		log:        logger,
	}, nil
}

// Get fetches one object by id
func (p *ParseStore) Get(ctx context.Context, class, id string) (Object, bool, error) {
	var obj Object
	err := p.do(ctx, http.MethodGet, p.objectPath(class, id), nil, nil, &obj)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) && perr.NotFound() {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s/%s: %w", class, id, err)
	}
	return obj, true, nil
}

// Query runs a filtered query against a class
func (p *ParseStore) Query(ctx context.Context, class string, q Query) (*QueryResult, error) {
	params := url.Values{}
	if len(q.Where) > 0 {
		where, err := json.Marshal(q.Where)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal where clause: %w", err)
		}
		params.Set("where", string(where))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		params.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Order != "" {
		params.Set("order", q.Order)
	}
	params.Set("count", "1")

	var resp struct {
		Results []Object `json:"results"`
		Count   int      `json:"count"`
	}
	if err := p.do(ctx, http.MethodGet, "/classes/"+url.PathEscape(class), params, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", class, err)
	}

	if resp.Results == nil {
		resp.Results = []Object{}
	}

	p.log.Debug().
		Str("class", class).
		Int("skip", q.Skip).
		Int("returned", len(resp.Results)).
		Int("count", resp.Count).
		Msg("Queried objects")

	return &QueryResult{Results: resp.Results, Count: resp.Count}, nil
}

// Save creates the object with POST or updates it with PUT
func (p *ParseStore) Save(ctx context.Context, class, id string, fields Object) (string, error) {
	body := make(Object, len(fields))
	for k, v := range fields {
		switch k {
		case "objectId", "createdAt", "updatedAt":
			// server managed
		default:
			body[k] = v
		}
	}

	if id == "" {
		var resp struct {
			ObjectID string `json:"objectId"`
		}
		if err := p.do(ctx, http.MethodPost, "/classes/"+url.PathEscape(class), nil, body, &resp); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", class, err)
		}
		if resp.ObjectID == "" {
			return "", fmt.Errorf("failed to create %s: response carried no objectId", class)
		}
		return resp.ObjectID, nil
	}

	if err := p.do(ctx, http.MethodPut, p.objectPath(class, id), nil, body, nil); err != nil {
		return "", fmt.Errorf("failed to update %s/%s: %w", class, id, err)
	}
	return id, nil
}

// Delete removes an object; a missing object counts as deleted
func (p *ParseStore) Delete(ctx context.Context, class, id string) error {
	err := p.do(ctx, http.MethodDelete, p.objectPath(class, id), nil, nil, nil)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) && perr.NotFound() {
			p.log.Debug().Str("class", class).Str("id", id).Msg("Object already deleted")
			return nil
		}
		return fmt.Errorf("failed to delete %s/%s: %w", class, id, err)
	}
	return nil
}

func (p *ParseStore) objectPath(class, id string) string {
	return "/classes/" + url.PathEscape(class) + "/" + url.PathEscape(id)
}

// do sends one request through the limiter and the circuit breaker and
// decodes a JSON response into out
func (p *ParseStore) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	endpoint := p.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("X-Parse-Application-Id", p.appID)
		req.Header.Set("X-Parse-REST-API-Key", p.restKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, parseErrorFrom(resp.StatusCode, data)
		}
		return &parseResponse{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		return err
	}

	resp := result.(*parseResponse)
	if resp.status < 200 || resp.status >= 300 {
		return parseErrorFrom(resp.status, resp.body)
	}

	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// parseResponse carries 2xx and 4xx responses out of the breaker so client
// errors such as a missing object do not trip it
type parseResponse struct {
	status int
	body   []byte
}

func parseErrorFrom(status int, body []byte) *ParseError {
	perr := &ParseError{Status: status}
	if err := json.Unmarshal(body, perr); err != nil || perr.Message == "" {
		perr.Message = strings.TrimSpace(string(body))
	}
	perr.Status = status
	return perr
}
