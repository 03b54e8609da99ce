// Package source adapts each feed vendor to the ingestion pipeline: which
// vendor fields to read, how a release is identified, and how it is
// enriched with Anilist and Bangumi metadata.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/moistari/rls"
	"github.com/pokerjest/animerss/internal/anilist"
	"github.com/pokerjest/animerss/internal/bangumi"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/pokerjest/animerss/pkg/rss"
)

var (
	ErrNoIdentity    = errors.New("item has no identity")
	ErrUnknownSource = errors.New("unknown source type")
)

// Plugin is the capability set the pipeline needs from a vendor.
type Plugin interface {
	Type() model.SourceType
	FieldMappings() []rss.FieldMapping
	IdentityHash(item rss.Item) (string, error)
	Enrich(ctx context.Context, item rss.Item) (*model.Anime, error)
}

type TitleExtractor interface {
	Extract(ctx context.Context, raw string) string
}

type AnilistSearcher interface {
	SearchAnime(ctx context.Context, query string) (*anilist.Media, error)
}

type BangumiResolver interface {
	SearchSubject(ctx context.Context, keyword string) (*bangumi.SearchResult, error)
	GetSubject(ctx context.Context, id int) (*bangumi.Subject, error)
}

type BangumiScraper interface {
	BangumiID(ctx context.Context, episodeURL string) (int, error)
}

type Settings interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

// Registry maps a source type to its plugin. It is built once at startup.
type Registry struct {
	plugins map[model.SourceType]Plugin
}

func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[model.SourceType]Plugin, len(plugins))}
	for _, p := range plugins {
		r.plugins[p.Type()] = p
	}
	return r
}

func (r *Registry) Get(t model.SourceType) (Plugin, error) {
	p, ok := r.plugins[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, t)
	}
	return p, nil
}

// baseRecord fills the fields every vendor shares.
func baseRecord(item rss.Item) *model.Anime {
	a := &model.Anime{
		RawTitle:    item.Title,
		Link:        item.Link,
		TorrentURL:  item.EnclosureURL,
		PublishedAt: item.Published,
		Size:        item.EnclosureLength,
	}
	if a.TorrentURL == "" && strings.HasSuffix(item.Link, ".torrent") {
		a.TorrentURL = item.Link
	}

	r := rls.ParseString(item.Title)
	a.Episode = r.Episode
	a.Resolution = r.Resolution
	a.Group = r.Group
	return a
}

func applyAnilist(a *model.Anime, m *anilist.Media) {
	if m == nil {
		return
	}
	a.AnilistID = m.ID
	a.TitleNative = m.Title.Native
	a.TitleEN = m.Title.English
	a.TitleRomaji = m.Title.Romaji
	a.AnilistCover = m.Cover()
}

// BuildMagnet builds a magnet URI from an info-hash.
func BuildMagnet(infoHash, name string, trackers []string) string {
	if infoHash == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "magnet:?xt=urn:btih:%s", infoHash)
	if name != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(name))
	}
	for _, tr := range trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tr))
	}
	return b.String()
}

var btih = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// IsInfoHash reports whether s is a hex-encoded v1 info-hash.
func IsInfoHash(s string) bool {
	return btih.MatchString(s)
}

func loadTrackers(ctx context.Context, s Settings) []string {
	if s == nil {
		return nil
	}
	raw, err := s.GetConfig(ctx, model.ConfigKeyTrackers)
	if err != nil || raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ',' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseLocalTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return &t
		}
	}
	return nil
}
