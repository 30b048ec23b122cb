package homework

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

	"hwbot/pkg/logx"
)

const (
	DefaultEndpoint   = "https://practicum.yandex.ru/api/user_api/homework_statuses/"
	DefaultAuthScheme = "OAuth"
	DefaultTimeout    = 30 * time.Second
	DefaultUserAgent  = "hwbot/1.0"

	maxBodyBytes = 1 << 20
)

type ClientConfig struct {
	Endpoint   string
	Token      string
	AuthScheme string
	Timeout    time.Duration
	UserAgent  string
}

// Client polls the homework status endpoint.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg ClientConfig, log logx.Logger) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClientWithHTTP(cfg, &http.Client{Timeout: timeout}, log)
}

// NewClientWithHTTP builds a client on top of a caller-provided http.Client (tests, proxies).
func NewClientWithHTTP(cfg ClientConfig, hc *http.Client, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("practicum token is empty")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid practicum endpoint %q", cfg.Endpoint)
	}
	if strings.TrimSpace(cfg.AuthScheme) == "" {
		cfg.AuthScheme = DefaultAuthScheme
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: hc, log: log}, nil
}

func (c *Client) Endpoint() string { return c.cfg.Endpoint }

// Fetch requests status updates since fromDate (unix seconds) and validates the answer.
//
// Errors are *NetworkError or *ParseError.
func (c *Client) Fetch(ctx context.Context, fromDate int64) (Response, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return Response{}, &NetworkError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(fromDate, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Response{}, &NetworkError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	req.Header.Set("Authorization", c.cfg.AuthScheme+" "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, &NetworkError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, &NetworkError{Endpoint: c.cfg.Endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	c.log.Debug("api answered",
		logx.Int("status", resp.StatusCode),
		logx.Int64("from_date", fromDate),
		logx.Duration("took", time.Since(started)),
		logx.Int("bytes", len(body)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ne := &NetworkError{Endpoint: c.cfg.Endpoint, StatusCode: resp.StatusCode}
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil {
			ne.Code, ne.Message = apiErr.Code, apiErr.Message
		}
		return Response{}, ne
	}

	return ParseResponse(body)
}

type wireHomework struct {
	ID              int64   `json:"id"`
	HomeworkName    *string `json:"homework_name"`
	Status          *string `json:"status"`
	ReviewerComment string  `json:"reviewer_comment"`
	DateUpdated     string  `json:"date_updated"`
}

// ParseResponse validates a raw API body: a JSON object with a "homeworks"
// list and an integer "current_date". Only the first (latest) homework is kept.
func ParseResponse(body []byte) (Response, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return Response{}, parseErr("malformed json", body, nil)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return Response{}, parseErr("response is not a json object", body, err)
	}

	rawList, ok := top["homeworks"]
	if !ok || isNull(rawList) {
		return Response{}, parseErr(`missing key "homeworks"`, body, nil)
	}
	rawDate, ok := top["current_date"]
	if !ok || isNull(rawDate) {
		return Response{}, parseErr(`missing key "current_date"`, body, nil)
	}

	var currentDate int64
	if err := json.Unmarshal(rawDate, &currentDate); err != nil {
		return Response{}, parseErr(`"current_date" is not an integer`, body, err)
	}

	var list []json.RawMessage
	if err := json.Unmarshal(rawList, &list); err != nil {
		return Response{}, parseErr(`"homeworks" is not a list`, body, err)
	}
	if len(list) == 0 {
		return Response{CurrentDate: currentDate}, nil
	}

	rec, err := parseHomework(list[0])
	if err != nil {
		return Response{}, parseErr(err.Error(), body, nil)
	}
	return Response{Records: []Record{rec}, CurrentDate: currentDate}, nil
}

func parseHomework(raw json.RawMessage) (Record, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Record{}, errors.New("homework entry is not an object")
	}
	var w wireHomework
	if err := json.Unmarshal(raw, &w); err != nil {
		return Record{}, fmt.Errorf("homework entry: %v", err)
	}
	if w.HomeworkName == nil || strings.TrimSpace(*w.HomeworkName) == "" {
		return Record{}, errors.New(`homework entry has no "homework_name"`)
	}
	if w.Status == nil {
		return Record{}, errors.New(`homework entry has no "status"`)
	}
	st, err := ParseStatus(*w.Status)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:              w.ID,
		HomeworkName:    *w.HomeworkName,
		Status:          st,
		VerdictText:     st.Verdict(),
		ReviewerComment: w.ReviewerComment,
	}
	if w.DateUpdated != "" {
		if t, err := time.Parse(time.RFC3339, w.DateUpdated); err == nil {
			rec.UpdatedAt = t
		}
	}
	return rec, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
