package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/pokerjest/animerss/pkg/rss"
)

const nyaaAnimeCategoryPrefix = "1_"

// Nyaa handles nyaa.si feeds (nyaa: namespace).
type Nyaa struct {
	extractor TitleExtractor
	anilist   AnilistSearcher
	bangumi   BangumiResolver
	settings  Settings
}

func NewNyaa(extractor TitleExtractor, al AnilistSearcher, bgm BangumiResolver, settings Settings) *Nyaa {
	return &Nyaa{extractor: extractor, anilist: al, bangumi: bgm, settings: settings}
}

func (p *Nyaa) Type() model.SourceType { return model.SourceNyaa }

func (p *Nyaa) FieldMappings() []rss.FieldMapping {
	return []rss.FieldMapping{
		{Key: "infoHash", Path: "infoHash"},
		{Key: "categoryId", Path: "categoryId"},
		{Key: "size", Path: "size"},
	}
}

func (p *Nyaa) IdentityHash(item rss.Item) (string, error) {
	h := strings.ToLower(strings.TrimSpace(item.Field("infoHash")))
	if h == "" {
		return "", fmt.Errorf("nyaa %q: %w", item.Title, ErrNoIdentity)
	}
	return h, nil
}

func (p *Nyaa) Enrich(ctx context.Context, item rss.Item) (*model.Anime, error) {
	hash, err := p.IdentityHash(item)
	if err != nil {
		return nil, err
	}

	a := baseRecord(item)
	a.Hash = hash
	a.Category = item.Field("categoryId")
	if size, err := humanize.ParseBytes(item.Field("size")); err == nil && size > 0 {
		a.Size = int64(size)
	}
	a.Magnet = BuildMagnet(hash, item.Title, loadTrackers(ctx, p.settings))

	// 非动画分类不做元数据匹配
	if !strings.HasPrefix(a.Category, nyaaAnimeCategoryPrefix) {
		return a, nil
	}

	title := p.extractor.Extract(ctx, item.Title)
	a.ParsedTitle = title
	if title == "" {
		return a, nil
	}

	media, err := p.anilist.SearchAnime(ctx, title)
	if err != nil {
		return nil, err
	}
	applyAnilist(a, media)

	keyword := title
	if media != nil && media.Title.Native != "" {
		keyword = media.Title.Native
	}
	subject, err := p.bangumi.SearchSubject(ctx, keyword)
	if err != nil {
		return nil, err
	}
	if subject != nil {
		a.BangumiID = subject.ID
		a.TitleCN = subject.NameCN
		a.BangumiCover = subject.Images.Cover()
		if a.TitleNative == "" {
			a.TitleNative = subject.Name
		}
	}
	return a, nil
}
