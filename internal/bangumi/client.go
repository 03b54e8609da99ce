package bangumi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultEndpoint = "https://api.bgm.tv"

type Limiter interface {
	Acquire(ctx context.Context) error
}

// Error wraps a failed lookup with its query (keyword or subject id).
type Error struct {
	Query string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bangumi: %s: %v", e.Query, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Client struct {
	client   *resty.Client
	endpoint string
	limiter  Limiter
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		if proxyURL != "" {
			c.client.SetProxy(proxyURL)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.SetTimeout(d)
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.client.SetHeader("User-Agent", ua)
		}
	}
}

func NewClient(limiter Limiter, opts ...Option) *Client {
	c := &Client{
		client: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("User-Agent", "pokerjest/animerss/1.0 (https://github.com/pokerjest/animerss)"),
		endpoint: DefaultEndpoint,
		limiter:  limiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func fixImage(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

func (i *Images) fix() {
	i.Large = fixImage(i.Large)
	i.Common = fixImage(i.Common)
	i.Medium = fixImage(i.Medium)
	i.Small = fixImage(i.Small)
	i.Grid = fixImage(i.Grid)
}

// Cover returns the largest image available.
func (i Images) Cover() string {
	for _, u := range []string{i.Large, i.Common, i.Medium} {
		if u != "" {
			return u
		}
	}
	return ""
}

func (c *Client) acquire(ctx context.Context, query string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return &Error{Query: query, Err: err}
	}
	return nil
}

// SearchSubject searches anime subjects by keyword and returns the first
// hit, or nil when nothing matches.
func (c *Client) SearchSubject(ctx context.Context, keyword string) (*SearchResult, error) {
	query := "search " + strconv.Quote(keyword)
	if err := c.acquire(ctx, query); err != nil {
		return nil, err
	}

	// GET /search/subject/{keywords}?type=2&responseGroup=small
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("keyword", keyword).
		SetQueryParams(map[string]string{
			"type":          strconv.Itoa(SubjectTypeAnime),
			"responseGroup": "small",
			"max_results":   "1",
		}).
		Get(c.endpoint + "/search/subject/{keyword}")
	if err != nil {
		return nil, &Error{Query: query, Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, &Error{Query: query, Err: fmt.Errorf("status %s", resp.Status())}
	}

	var result struct {
		List []SearchResult `json:"list"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, &Error{Query: query, Err: err}
	}

	for i := range result.List {
		item := &result.List[i]
		if item.Type != 0 && item.Type != SubjectTypeAnime {
			continue
		}
		item.Images.fix()
		return item, nil
	}
	return nil, nil
}

// GetSubject fetches a subject by id; nil when it does not exist.
func (c *Client) GetSubject(ctx context.Context, id int) (*Subject, error) {
	query := "subject " + strconv.Itoa(id)
	if err := c.acquire(ctx, query); err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", strconv.Itoa(id)).
		Get(c.endpoint + "/v0/subjects/{id}")
	if err != nil {
		return nil, &Error{Query: query, Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, &Error{Query: query, Err: fmt.Errorf("status %s", resp.Status())}
	}

	var subject Subject
	if err := json.Unmarshal(resp.Body(), &subject); err != nil {
		return nil, &Error{Query: query, Err: err}
	}
	subject.Images.fix()
	return &subject, nil
}
