package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTitleTemplate   = "[{subscription}] {name}"
	defaultMessageTemplate = "{title}\n{size}"
	defaultServerChanURL   = "https://sctapi.ftqq.com"
	gotifyPriority         = 5
)

var ErrUnsupportedChannel = errors.New("unsupported channel type")

// Event is the payload for a newly created release.
type Event struct {
	Subscription string
	Anime        model.Anime
}

type ChannelStore interface {
	ListEnabledChannels(ctx context.Context) ([]model.NotificationChannel, error)
}

type Dispatcher struct {
	client *resty.Client
	store  ChannelStore
	log    *logrus.Entry
}

func NewDispatcher(store ChannelStore, timeout time.Duration, log *logrus.Entry) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		client: resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		store:  store,
		log:    log,
	}
}

// NotifyAll sends ev to every enabled channel whose filter admits the
// subscription. Channel failures are logged and never returned.
func (d *Dispatcher) NotifyAll(ctx context.Context, ev Event) {
	channels, err := d.store.ListEnabledChannels(ctx)
	if err != nil {
		d.log.WithError(err).Error("load notification channels")
		return
	}

	var g errgroup.Group
	g.SetLimit(4)
	for _, ch := range channels {
		if !Matches(ch.Filter, ev.Subscription) {
			continue
		}
		ch := ch
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					d.log.WithField("channel", ch.Name).Errorf("notify panic: %v", r)
				}
			}()
			if err := d.Dispatch(ctx, ch, ev); err != nil {
				d.log.WithError(err).WithField("channel", ch.Name).Warn("notify failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Matches reports whether a comma separated filter admits name. An empty
// filter admits everything.
func Matches(filter, name string) bool {
	if strings.TrimSpace(filter) == "" {
		return true
	}
	for _, f := range strings.Split(filter, ",") {
		if strings.TrimSpace(f) == name {
			return true
		}
	}
	return false
}

// Dispatch sends one notification.
func (d *Dispatcher) Dispatch(ctx context.Context, ch model.NotificationChannel, ev Event) error {
	fields := templateFields(ev)
	title := Render(orDefault(ch.TitleTemplate, defaultTitleTemplate), fields)
	message := Render(orDefault(ch.MessageTemplate, defaultMessageTemplate), fields)

	extras, err := url.ParseQuery(ch.ExtraParams)
	if err != nil {
		return fmt.Errorf("channel %s: extra params: %w", ch.Name, err)
	}

	switch ch.Type {
	case model.ChannelBark:
		body := map[string]interface{}{
			"title":      title,
			"body":       message,
			"device_key": ch.Token,
		}
		mergeExtras(body, extras)
		var out struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := d.post(ctx, strings.TrimRight(ch.URL, "/")+"/push", nil, body, &out); err != nil {
			return fmt.Errorf("bark %s: %w", ch.Name, err)
		}
		if out.Code != 200 {
			return fmt.Errorf("bark %s: code %d: %s", ch.Name, out.Code, out.Message)
		}
		return nil

	case model.ChannelGotify:
		body := map[string]interface{}{
			"title":    title,
			"message":  message,
			"priority": gotifyPriority,
		}
		mergeExtras(body, extras)
		headers := map[string]string{"X-Gotify-Key": ch.Token}
		if err := d.post(ctx, strings.TrimRight(ch.URL, "/")+"/message", headers, body, nil); err != nil {
			return fmt.Errorf("gotify %s: %w", ch.Name, err)
		}
		return nil

	case model.ChannelServerChan:
		base := orDefault(strings.TrimRight(ch.URL, "/"), defaultServerChanURL)
		body := map[string]interface{}{
			"title": title,
			"desp":  message,
		}
		mergeExtras(body, extras)
		var out struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := d.post(ctx, fmt.Sprintf("%s/%s.send", base, ch.Token), nil, body, &out); err != nil {
			return fmt.Errorf("serverchan %s: %w", ch.Name, err)
		}
		if out.Code != 0 {
			return fmt.Errorf("serverchan %s: code %d: %s", ch.Name, out.Code, out.Message)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedChannel, ch.Type)
}

func (d *Dispatcher) post(ctx context.Context, endpoint string, headers map[string]string, body interface{}, out interface{}) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status %s: %s", resp.Status(), strings.TrimSpace(string(resp.Body())))
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// mergeExtras copies query-style parameters into the body. Integer values
// are sent as numbers.
func mergeExtras(body map[string]interface{}, extras url.Values) {
	for k, vs := range extras {
		if len(vs) == 0 {
			continue
		}
		v := vs[0]
		if n, err := strconv.Atoi(v); err == nil {
			body[k] = n
			continue
		}
		body[k] = v
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func templateFields(ev Event) map[string]string {
	a := ev.Anime
	name := firstNonEmpty(a.TitleCN, a.TitleNative, a.TitleRomaji, a.TitleEN, a.ParsedTitle, a.RawTitle)
	published := ""
	if a.PublishedAt != nil {
		published = a.PublishedAt.Format("2006-01-02 15:04")
	}
	size := ""
	if a.Size > 0 {
		size = humanize.IBytes(uint64(a.Size))
	}
	episode := ""
	if a.Episode > 0 {
		episode = strconv.Itoa(a.Episode)
	}
	return map[string]string{
		"subscription": ev.Subscription,
		"name":         name,
		"title":        a.RawTitle,
		"parsed_title": a.ParsedTitle,
		"title_native": a.TitleNative,
		"title_cn":     a.TitleCN,
		"title_en":     a.TitleEN,
		"title_romaji": a.TitleRomaji,
		"episode":      episode,
		"resolution":   a.Resolution,
		"group":        a.Group,
		"magnet":       a.Magnet,
		"torrent":      a.TorrentURL,
		"link":         a.Link,
		"size":         size,
		"published":    published,
		"cover":        firstNonEmpty(a.BangumiCover, a.AnilistCover),
	}
}

// Render replaces {field} placeholders. Unknown placeholders are kept.
func Render(tpl string, fields map[string]string) string {
	pairs := make([]string, 0, len(fields)*2)
	for k, v := range fields {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
