package anilist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	GraphQLEndpoint = "https://graphql.anilist.co"
)

// Limiter gates every outbound call.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Error wraps a failed lookup with the query that caused it.
type Error struct {
	Query string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("anilist: search %q: %v", e.Query, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Client struct {
	client   *resty.Client
	endpoint string
	limiter  Limiter
}

type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint (tests).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
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

func NewClient(limiter Limiter, opts ...Option) *Client {
	r := resty.New()
	r.SetTimeout(10 * time.Second)
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")

	c := &Client{
		client:   r,
		endpoint: GraphQLEndpoint,
		limiter:  limiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type MediaTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

type CoverImage struct {
	ExtraLarge string `json:"extraLarge"`
	Large      string `json:"large"`
}

type Media struct {
	ID         int        `json:"id"`
	Title      MediaTitle `json:"title"`
	CoverImage CoverImage `json:"coverImage"`
}

// Cover returns the best available cover URL.
func (m *Media) Cover() string {
	if m.CoverImage.ExtraLarge != "" {
		return m.CoverImage.ExtraLarge
	}
	return m.CoverImage.Large
}

type searchResponse struct {
	Data struct {
		Page struct {
			Media []Media `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const searchQuery = `
query ($search: String) {
  Page(page: 1, perPage: 1) {
    media(search: $search, type: ANIME, sort: SEARCH_MATCH) {
      id
      title {
        romaji
        english
        native
      }
      coverImage {
        extraLarge
        large
      }
    }
  }
}
`

// SearchAnime returns the best match for query, or nil when Anilist has no
// result.
func (c *Client) SearchAnime(ctx context.Context, query string) (*Media, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, &Error{Query: query, Err: err}
		}
	}

	payload := map[string]interface{}{
		"query": searchQuery,
		"variables": map[string]interface{}{
			"search": query,
		},
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(c.endpoint)
	if err != nil {
		return nil, &Error{Query: query, Err: err}
	}

	var result searchResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		if resp.IsError() {
			return nil, &Error{Query: query, Err: fmt.Errorf("status %s", resp.Status())}
		}
		return nil, &Error{Query: query, Err: err}
	}

	if len(result.Errors) > 0 {
		// Anilist 查不到时返回 404 + "Not Found."
		if resp.StatusCode() == 404 {
			return nil, nil
		}
		return nil, &Error{Query: query, Err: fmt.Errorf("graphql: %s", result.Errors[0].Message)}
	}
	if resp.IsError() {
		return nil, &Error{Query: query, Err: fmt.Errorf("status %s", resp.Status())}
	}

	if len(result.Data.Page.Media) > 0 {
		return &result.Data.Page.Media[0], nil
	}
	return nil, nil
}
