package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pokerjest/animerss/internal/anilist"
	"github.com/pokerjest/animerss/internal/bangumi"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/pokerjest/animerss/pkg/rss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	title string
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, raw string) string {
	f.calls++
	return f.title
}

type fakeAnilist struct {
	media   *anilist.Media
	err     error
	queries []string
}

func (f *fakeAnilist) SearchAnime(ctx context.Context, q string) (*anilist.Media, error) {
	f.queries = append(f.queries, q)
	return f.media, f.err
}

type fakeBangumi struct {
	search   *bangumi.SearchResult
	subject  *bangumi.Subject
	err      error
	keywords []string
	ids      []int
}

func (f *fakeBangumi) SearchSubject(ctx context.Context, kw string) (*bangumi.SearchResult, error) {
	f.keywords = append(f.keywords, kw)
	return f.search, f.err
}

func (f *fakeBangumi) GetSubject(ctx context.Context, id int) (*bangumi.Subject, error) {
	f.ids = append(f.ids, id)
	return f.subject, f.err
}

type fakeScraper struct {
	id  int
	err error
}

func (f *fakeScraper) BangumiID(ctx context.Context, u string) (int, error) { return f.id, f.err }

type fakeSettings map[string]string

func (f fakeSettings) GetConfig(ctx context.Context, key string) (string, error) { return f[key], nil }

func nyaaItem(category string) rss.Item {
	return rss.Item{
		Title: "[SubsPlease] Dandadan - 01 (1080p) [4A1D2B5C].mkv",
		Link:  "https://nyaa.si/download/1.torrent",
		Fields: map[string]string{
			"infoHash":   "0123456789ABCDEF0123456789ABCDEF01234567",
			"categoryId": category,
			"size":       "1.4 GiB",
		},
	}
}

func TestNyaa_IdentityHash(t *testing.T) {
	p := NewNyaa(nil, nil, nil, nil)
	h, err := p.IdentityHash(nyaaItem("1_2"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", h)

	_, err = p.IdentityHash(rss.Item{Title: "x"})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestNyaa_NonAnimeCategoryIsBare(t *testing.T) {
	ex := &fakeExtractor{title: "Dandadan"}
	al := &fakeAnilist{}
	p := NewNyaa(ex, al, &fakeBangumi{}, fakeSettings{})

	a, err := p.Enrich(context.Background(), nyaaItem("2_2"))
	require.NoError(t, err)
	assert.Zero(t, ex.calls)
	assert.Empty(t, al.queries)
	assert.Equal(t, "2_2", a.Category)
	assert.Equal(t, int64(1503238553), a.Size)
	assert.Contains(t, a.Magnet, "urn:btih:0123456789abcdef")
}

func TestNyaa_EnrichUsesNativeTitleForBangumi(t *testing.T) {
	al := &fakeAnilist{media: &anilist.Media{
		ID:    171018,
		Title: anilist.MediaTitle{Native: "ダンダダン", English: "DAN DA DAN", Romaji: "Dandadan"},
	}}
	bgm := &fakeBangumi{search: &bangumi.SearchResult{ID: 403238, Name: "ダンダダン", NameCN: "胆大党"}}
	p := NewNyaa(&fakeExtractor{title: "Dandadan"}, al, bgm, fakeSettings{model.ConfigKeyTrackers: "udp://a:1\nudp://b:2"})

	a, err := p.Enrich(context.Background(), nyaaItem("1_2"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Dandadan"}, al.queries)
	assert.Equal(t, []string{"ダンダダン"}, bgm.keywords)
	assert.Equal(t, "Dandadan", a.ParsedTitle)
	assert.Equal(t, 171018, a.AnilistID)
	assert.Equal(t, 403238, a.BangumiID)
	assert.Equal(t, "胆大党", a.TitleCN)
	assert.Equal(t, "DAN DA DAN", a.TitleEN)
	assert.Contains(t, a.Magnet, "&tr=udp%3A%2F%2Fa%3A1")
	assert.Contains(t, a.Magnet, "&tr=udp%3A%2F%2Fb%3A2")
}

func TestNyaa_AnilistMissFallsBackToExtractedTitle(t *testing.T) {
	bgm := &fakeBangumi{}
	p := NewNyaa(&fakeExtractor{title: "Dandadan"}, &fakeAnilist{}, bgm, nil)

	a, err := p.Enrich(context.Background(), nyaaItem("1_2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Dandadan"}, bgm.keywords)
	assert.Zero(t, a.AnilistID)
	assert.Zero(t, a.BangumiID)
}

func TestNyaa_NoTitleSkipsLookups(t *testing.T) {
	al := &fakeAnilist{}
	p := NewNyaa(&fakeExtractor{}, al, &fakeBangumi{}, nil)
	a, err := p.Enrich(context.Background(), nyaaItem("1_2"))
	require.NoError(t, err)
	assert.Empty(t, al.queries)
	assert.Empty(t, a.ParsedTitle)
}

func TestNyaa_ResolverErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	p := NewNyaa(&fakeExtractor{title: "x"}, &fakeAnilist{err: boom}, &fakeBangumi{}, nil)
	_, err := p.Enrich(context.Background(), nyaaItem("1_2"))
	assert.ErrorIs(t, err, boom)
}

func mikanItem() rss.Item {
	pub := time.Date(2024, 3, 23, 11, 23, 0, 0, time.UTC)
	return rss.Item{
		Title:           "[LoliHouse] 葬送的芙莉莲 / Sousou no Frieren - 28 [WebRip 1080p HEVC-10bit AAC][简繁内封字幕]",
		Link:            "https://mikanani.me/Home/Episode/8c2cba8e5ac2d6ee7e1ee2d6cd8cbd1dc8ab1a3b",
		EnclosureURL:    "https://mikanani.me/Download/20240323/8c2cba8e5ac2d6ee7e1ee2d6cd8cbd1dc8ab1a3b.torrent",
		EnclosureLength: 618973184,
		Published:       &pub,
	}
}

func TestMikan_IdentityHash(t *testing.T) {
	p := NewMikan(nil, nil, nil, nil)
	h, err := p.IdentityHash(mikanItem())
	require.NoError(t, err)
	assert.Equal(t, "8c2cba8e5ac2d6ee7e1ee2d6cd8cbd1dc8ab1a3b", h)

	_, err = p.IdentityHash(rss.Item{Link: ""})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestMikan_Enrich(t *testing.T) {
	bgm := &fakeBangumi{subject: &bangumi.Subject{ID: 400602, Name: "葬送のフリーレン", NameCN: "葬送的芙莉莲"}}
	al := &fakeAnilist{media: &anilist.Media{ID: 154587, Title: anilist.MediaTitle{Native: "葬送のフリーレン", Romaji: "Sousou no Frieren"}}}
	p := NewMikan(&fakeScraper{id: 400602}, bgm, al, nil)

	a, err := p.Enrich(context.Background(), mikanItem())
	require.NoError(t, err)

	assert.Equal(t, []int{400602}, bgm.ids)
	assert.Equal(t, []string{"葬送のフリーレン"}, al.queries)
	assert.Equal(t, 400602, a.BangumiID)
	assert.Equal(t, 154587, a.AnilistID)
	assert.Equal(t, "葬送的芙莉莲", a.TitleCN)
	assert.Equal(t, "Sousou no Frieren", a.TitleRomaji)
	assert.Equal(t, int64(618973184), a.Size)
	assert.Contains(t, a.Magnet, "urn:btih:8c2cba8e5ac2d6ee7e1ee2d6cd8cbd1dc8ab1a3b")
}

func TestMikan_NoBangumiLink(t *testing.T) {
	bgm := &fakeBangumi{}
	p := NewMikan(&fakeScraper{}, bgm, &fakeAnilist{}, nil)
	a, err := p.Enrich(context.Background(), mikanItem())
	require.NoError(t, err)
	assert.Empty(t, bgm.ids)
	assert.Zero(t, a.BangumiID)
}

func TestMikan_TorrentPubDateFallback(t *testing.T) {
	item := mikanItem()
	item.Published = nil
	item.Fields = map[string]string{"torrentPubDate": "2024-03-23T11:23:00"}
	a, err := NewMikan(&fakeScraper{}, &fakeBangumi{}, &fakeAnilist{}, nil).Enrich(context.Background(), item)
	require.NoError(t, err)
	require.NotNil(t, a.PublishedAt)
	assert.Equal(t, 23, a.PublishedAt.Day())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewNyaa(nil, nil, nil, nil), NewMikan(nil, nil, nil, nil))

	p, err := r.Get(model.SourceMikan)
	require.NoError(t, err)
	assert.Equal(t, model.SourceMikan, p.Type())

	_, err = r.Get("dmhy")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestBuildMagnet(t *testing.T) {
	assert.Equal(t, "magnet:?xt=urn:btih:abc&dn=a+b", BuildMagnet("abc", "a b", nil))
	assert.Empty(t, BuildMagnet("", "x", nil))
}
