package model

import (
	"time"

	"gorm.io/gorm"
)

// SourceType 订阅源类型
type SourceType string

const (
	SourceNyaa  SourceType = "nyaa"
	SourceMikan SourceType = "mikan"
)

func (s SourceType) Valid() bool {
	return s == SourceNyaa || s == SourceMikan
}

// SubscriptionState 刷新状态
type SubscriptionState string

const (
	StateIdle       SubscriptionState = "idle"
	StateRefreshing SubscriptionState = "refreshing"
)

// Subscription 代表一个 RSS 订阅
type Subscription struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Name         string            `gorm:"uniqueIndex;not null" json:"name"`
	URL          string            `gorm:"not null" json:"url"`
	SourceType   SourceType        `gorm:"not null" json:"source_type"`
	Cron         string            `gorm:"not null" json:"cron"`
	State        SubscriptionState `gorm:"not null;default:idle" json:"state"`
	RefreshedAt  *time.Time        `json:"refreshed_at"`
	RefreshCount int               `gorm:"not null;default:0" json:"refresh_count"` // 成功刷新次数
}

// Anime 一条发布记录，按 Hash 去重
type Anime struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Hash        string    `gorm:"uniqueIndex;not null" json:"hash"`
	RawTitle    string    `json:"raw_title"`
	ParsedTitle string    `json:"parsed_title"`

	TitleNative string `json:"title_native"`
	TitleCN     string `json:"title_cn"`
	TitleEN     string `json:"title_en"`
	TitleRomaji string `json:"title_romaji"`

	AnilistID    int    `json:"anilist_id"`
	BangumiID    int    `json:"bangumi_id"`
	AnilistCover string `json:"anilist_cover"`
	BangumiCover string `json:"bangumi_cover"`

	Magnet      string     `json:"magnet"`
	TorrentURL  string     `json:"torrent_url"`
	Link        string     `json:"link"`
	Category    string     `json:"category"`
	PublishedAt *time.Time `json:"published_at"`
	Size        int64      `json:"size"`

	// rls 解析出的辅助字段，仅用于展示
	Episode    int    `json:"episode"`
	Resolution string `json:"resolution"`
	Group      string `json:"group"`
}

// SubscriptionAnime 订阅与发布记录的关联表
type SubscriptionAnime struct {
	SubscriptionID uint `gorm:"primaryKey"`
	AnimeID        uint `gorm:"primaryKey;index"`
	CreatedAt      time.Time
}

func (SubscriptionAnime) TableName() string {
	return "subscription_animes"
}

// ChannelType 通知渠道类型
type ChannelType string

const (
	ChannelBark       ChannelType = "bark"
	ChannelGotify     ChannelType = "gotify"
	ChannelServerChan ChannelType = "serverchan"
)

// NotificationChannel 通知渠道配置
type NotificationChannel struct {
	gorm.Model
	Name            string      `gorm:"uniqueIndex" json:"name"`
	Type            ChannelType `json:"type"`
	URL             string      `json:"url"`
	Token           string      `json:"token"`
	TitleTemplate   string      `json:"title_template"`
	MessageTemplate string      `json:"message_template"`
	ExtraParams     string      `json:"extra_params"` // query string, 合并进请求体
	Filter          string      `json:"filter"`       // 逗号分隔的订阅名，空表示全部
	Enabled         bool        `json:"enabled"`
}

// GlobalConfig 存储运行时配置
type GlobalConfig struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

const (
	ConfigKeyParserPriority = "parser_priority"
	ConfigKeyAIEndpoint     = "ai_endpoint"
	ConfigKeyAIAPIKey       = "ai_api_key"
	ConfigKeyAIModel        = "ai_model"
	ConfigKeyTrackers       = "trackers"
)

// ParserPriority 标题解析优先级
type ParserPriority string

const (
	PriorityLocalOnly ParserPriority = "local-only"
	PriorityAIFirst   ParserPriority = "ai-first"
)
