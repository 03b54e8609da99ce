package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:nyaa="https://nyaa.si/xmlns/nyaa" version="2.0">
  <channel>
    <title>Nyaa</title>
    <item>
      <title>[SubsPlease] Dandadan - 01 (1080p) [4A1D2B5C].mkv</title>
      <link>https://nyaa.si/download/1880001.torrent</link>
      <guid isPermaLink="true">https://nyaa.si/view/1880001</guid>
      <pubDate>Thu, 03 Oct 2024 16:02:11 -0000</pubDate>
      <nyaa:infoHash>0123456789ABCDEF0123456789ABCDEF01234567</nyaa:infoHash>
      <nyaa:categoryId>1_2</nyaa:categoryId>
      <nyaa:size>1.4 GiB</nyaa:size>
    </item>
  </channel>
</rss>`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ANIME_DATABASE_PATH", ":memory:")
	t.Setenv("ANIME_LOG_LEVEL", "error")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFeedCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	out, err := runCLI(t, "feed", srv.URL, "--type", "nyaa")
	require.NoError(t, err)
	assert.Contains(t, out, "0123456789a")
	assert.Contains(t, out, "1.4 GiB")
	assert.Contains(t, out, "1 items")
}

func TestFeedCommand_UnknownType(t *testing.T) {
	_, err := runCLI(t, "feed", "https://example.com/rss", "--type", "dmhy")
	assert.Error(t, err)
}

func TestListCommand_Empty(t *testing.T) {
	out, err := runCLI(t, "list")
	require.NoError(t, err)
	// go-pretty 默认把表头转成大写
	assert.Contains(t, strings.ToUpper(out), "NAME")
}

func TestFixOrphansCommand(t *testing.T) {
	out, err := runCLI(t, "fix-orphans", "--reset-stuck")
	require.NoError(t, err)
	assert.Contains(t, out, "No orphaned releases found.")
	assert.Contains(t, out, "Reset 0 subscriptions")
}

func TestUnsubscribeCommand_NotFound(t *testing.T) {
	_, err := runCLI(t, "unsubscribe", "ghost")
	assert.Error(t, err)
}
