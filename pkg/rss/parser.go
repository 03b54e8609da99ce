package rss

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
)

// FieldMapping pulls a vendor element out of each <item>. Path is a
// "/"-separated list of local element names below the item, so
// "torrent/contentLength" matches <torrent xmlns="..."><contentLength>.
type FieldMapping struct {
	Key  string
	Path string
}

type Item struct {
	Title           string
	Link            string
	GUID            string
	Description     string
	Published       *time.Time
	EnclosureURL    string
	EnclosureLength int64
	Fields          map[string]string
}

// Field returns a mapped vendor field, "" when absent.
func (i Item) Field(key string) string {
	if i.Fields == nil {
		return ""
	}
	return i.Fields[key]
}

type Fetcher struct {
	client *resty.Client
}

func NewFetcher(timeout time.Duration, proxyURL string) *Fetcher {
	c := resty.New().
		SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c.SetTimeout(timeout)
	if proxyURL != "" {
		c.SetProxy(proxyURL)
	}
	return &Fetcher{client: c}
}

// Fetch downloads and parses a feed.
func (f *Fetcher) Fetch(ctx context.Context, url string, mappings []FieldMapping) ([]Item, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: bad status: %s", url, resp.Status())
	}
	items, err := Parse(resp.Body(), mappings)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return items, nil
}

// Parse reads the standard item fields with gofeed and the mapped vendor
// fields with a raw XML pass.
func Parse(body []byte, mappings []FieldMapping) ([]Item, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var raw []xmlNode
	if len(mappings) > 0 {
		raw, err = rawItems(body)
		if err != nil {
			return nil, err
		}
	}

	items := make([]Item, 0, len(feed.Items))
	for i, fi := range feed.Items {
		item := Item{
			Title:       strings.TrimSpace(fi.Title),
			Link:        strings.TrimSpace(fi.Link),
			GUID:        strings.TrimSpace(fi.GUID),
			Description: fi.Description,
			Published:   fi.PublishedParsed,
		}
		if len(fi.Enclosures) > 0 {
			item.EnclosureURL = fi.Enclosures[0].URL
			item.EnclosureLength, _ = strconv.ParseInt(fi.Enclosures[0].Length, 10, 64)
		}

		if len(mappings) > 0 {
			item.Fields = make(map[string]string, len(mappings))
			if i < len(raw) {
				for _, m := range mappings {
					if v, ok := raw[i].find(strings.Split(m.Path, "/")); ok {
						item.Fields[m.Key] = v
					}
				}
			}
		}
		items = append(items, item)
	}
	return items, nil
}

type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

func (n xmlNode) find(path []string) (string, bool) {
	if len(path) == 0 {
		return strings.TrimSpace(n.Content), true
	}
	for _, c := range n.Nodes {
		if c.XMLName.Local == path[0] {
			if v, ok := c.find(path[1:]); ok {
				return v, true
			}
		}
	}
	return "", false
}

// rawItems returns every <item> (RSS) or <entry> (Atom) in document order.
func rawItems(body []byte) ([]xmlNode, error) {
	var root xmlNode
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	var out []xmlNode
	var walk func(n xmlNode)
	walk = func(n xmlNode) {
		for _, c := range n.Nodes {
			if c.XMLName.Local == "item" || c.XMLName.Local == "entry" {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	return out, nil
}
