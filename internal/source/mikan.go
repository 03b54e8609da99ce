package source

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/pokerjest/animerss/internal/model"
	"github.com/pokerjest/animerss/pkg/rss"
)

// Mikan handles mikanani.me feeds. Vendor fields live under a default
// namespaced <torrent> element.
type Mikan struct {
	scraper  BangumiScraper
	bangumi  BangumiResolver
	anilist  AnilistSearcher
	settings Settings
}

func NewMikan(scraper BangumiScraper, bgm BangumiResolver, al AnilistSearcher, settings Settings) *Mikan {
	return &Mikan{scraper: scraper, bangumi: bgm, anilist: al, settings: settings}
}

func (p *Mikan) Type() model.SourceType { return model.SourceMikan }

func (p *Mikan) FieldMappings() []rss.FieldMapping {
	return []rss.FieldMapping{
		{Key: "torrentPubDate", Path: "torrent/pubDate"},
		{Key: "contentLength", Path: "torrent/contentLength"},
	}
}

// IdentityHash is the last path segment of the episode page link.
func (p *Mikan) IdentityHash(item rss.Item) (string, error) {
	u, err := url.Parse(strings.TrimSpace(item.Link))
	if err != nil {
		return "", fmt.Errorf("mikan %q: %w", item.Link, err)
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "" || seg == "." || seg == "/" {
		return "", fmt.Errorf("mikan %q: %w", item.Title, ErrNoIdentity)
	}
	return seg, nil
}

func (p *Mikan) Enrich(ctx context.Context, item rss.Item) (*model.Anime, error) {
	hash, err := p.IdentityHash(item)
	if err != nil {
		return nil, err
	}

	a := baseRecord(item)
	a.Hash = hash
	if a.PublishedAt == nil {
		a.PublishedAt = parseLocalTime(item.Field("torrentPubDate"))
	}
	if a.Size == 0 {
		a.Size, _ = strconv.ParseInt(item.Field("contentLength"), 10, 64)
	}
	if a.TorrentURL != "" {
		name := strings.TrimSuffix(path.Base(a.TorrentURL), ".torrent")
		if IsInfoHash(name) {
			a.Magnet = BuildMagnet(strings.ToLower(name), item.Title, loadTrackers(ctx, p.settings))
		}
	}

	bangumiID, err := p.scraper.BangumiID(ctx, item.Link)
	if err != nil {
		return nil, err
	}
	if bangumiID == 0 {
		return a, nil
	}
	a.BangumiID = bangumiID

	subject, err := p.bangumi.GetSubject(ctx, bangumiID)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return a, nil
	}
	a.TitleNative = subject.Name
	a.TitleCN = subject.NameCN
	a.BangumiCover = subject.Images.Cover()

	if subject.Name == "" {
		return a, nil
	}
	media, err := p.anilist.SearchAnime(ctx, subject.Name)
	if err != nil {
		return nil, err
	}
	applyAnilist(a, media)
	if a.TitleNative == "" {
		a.TitleNative = subject.Name
	}
	return a, nil
}
