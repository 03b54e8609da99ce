// Package mikan scrapes Mikan Project pages for the Bangumi subject a
// release belongs to.
package mikan

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	episodeBangumiSelector = `.bangumi-title a[href*="/Home/Bangumi/"]`
	bangumiSubjectSelector = `.bangumi-info a[href*="/subject/"]`
)

type Limiter interface {
	Acquire(ctx context.Context) error
}

type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mikan: %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Scraper struct {
	client  *resty.Client
	limiter Limiter
}

func NewScraper(limiter Limiter, timeout time.Duration, proxyURL string) *Scraper {
	c := resty.New().
		SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if timeout > 0 {
		c.SetTimeout(timeout)
	} else {
		c.SetTimeout(10 * time.Second)
	}
	if proxyURL != "" {
		c.SetProxy(proxyURL)
	}
	return &Scraper{client: c, limiter: limiter}
}

// BangumiID follows episode page -> bangumi homepage -> bgm.tv subject link.
// It returns 0 when any link along the way is missing.
func (s *Scraper) BangumiID(ctx context.Context, episodeURL string) (int, error) {
	doc, err := s.fetch(ctx, episodeURL)
	if err != nil {
		return 0, err
	}
	homeHref, ok := doc.Find(episodeBangumiSelector).First().Attr("href")
	if !ok || homeHref == "" {
		return 0, nil
	}

	homeURL, err := resolve(episodeURL, homeHref)
	if err != nil {
		return 0, &Error{URL: episodeURL, Err: err}
	}

	doc, err = s.fetch(ctx, homeURL)
	if err != nil {
		return 0, err
	}
	subjectHref, ok := doc.Find(bangumiSubjectSelector).First().Attr("href")
	if !ok || subjectHref == "" {
		return 0, nil
	}
	return SubjectID(subjectHref), nil
}

// SubjectID extracts the trailing numeric id of a bgm.tv subject URL.
func SubjectID(href string) int {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return 0
	}
	id, err := strconv.Atoi(path.Base(strings.TrimRight(u.Path, "/")))
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, &Error{URL: pageURL, Err: err}
		}
	}
	resp, err := s.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, &Error{URL: pageURL, Err: err}
	}
	if resp.IsError() {
		return nil, &Error{URL: pageURL, Err: fmt.Errorf("status %s", resp.Status())}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, &Error{URL: pageURL, Err: err}
	}
	return doc, nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
