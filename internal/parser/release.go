package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// 标题噪声，按顺序剔除 (长的在前)
var noiseTokens = []*regexp.Regexp{
	regexp.MustCompile(`\bBD-BOX\b`),
	regexp.MustCompile(`\bBD\b`),
	regexp.MustCompile(`\bDVD-BOX\b`),
	regexp.MustCompile(`\bDVD\b`),
	regexp.MustCompile(`-\s*TV\b`),
	regexp.MustCompile(`\+\s*OAD\b`),
}

var (
	leadingBracket = regexp.MustCompile(`^\s*[\[【]([^\]】]*)[\]】]\s*`)
	starSegment    = regexp.MustCompile(`★[^★]*★`)
	videoExt       = regexp.MustCompile(`(?i)\.(mkv|mp4|avi|ts|m2ts|webm|torrent)$`)
	spaces         = regexp.MustCompile(`\s+`)
	trailingEp     = regexp.MustCompile(`\s+\d{2}(?:v\d)?\s*$`)

	// 标题结束位置
	titleStops = []*regexp.Regexp{
		regexp.MustCompile(`\s+-\s+\d`),
		regexp.MustCompile(`\s*第\s*\d+\s*[话話集期]`),
		regexp.MustCompile(`(?i)\sS\d{1,2}E\d{1,4}\b`),
		regexp.MustCompile(`\sE[Pp]?\d{1,4}\b`),
		regexp.MustCompile(`\s*[\[【(（]`),
	}

	// 方括号内的非标题标签
	tagPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{1,4}(\.\d)?(v\d)?(\s*END)?$`),
		regexp.MustCompile(`^\d{1,4}\s*-\s*\d{1,4}`),
		regexp.MustCompile(`(?i)^(第\s*\d+\s*[话話集期]|E[Pp]?\d+)`),
		regexp.MustCompile(`(?i)\b(\d{3,4}[pP]|\d{3,4}x\d{3,4}|4K|2160|1080|720)\b`),
		regexp.MustCompile(`(?i)\b(x26[45]|hevc|avc|aac|flac|web-?dl|web-?rip|bdrip|mp4|mkv|10-?bit|8-?bit)\b`),
		regexp.MustCompile(`(?i)^(chs|cht|gb|big5|jp|sc|tc|chs_jp|cht_jp)$`),
		regexp.MustCompile(`简|繁|双语|雙語|内封|內封|内嵌|內嵌|外挂|字幕|新番|合集`),
	}
)

// StripNoise removes the BD/DVD/TV/OAD markers that confuse title search.
func StripNoise(raw string) string {
	s := raw
	for _, re := range noiseTokens {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

// ParseReleaseTitle extracts the series title from a release name, or ""
// when nothing usable is left.
//
// Supported shapes:
//
//	[Group] Title - 01 [1080p][...]
//	[Group][Title][01][1080p]
//	【Group】★Season★[Title / Alt][01]
//	Title - 01 (1080p).mkv
func ParseReleaseTitle(raw string) string {
	s := StripNoise(raw)
	s = strings.TrimSpace(videoExt.ReplaceAllString(strings.TrimSpace(s), ""))
	s = starSegment.ReplaceAllString(s, "")

	// 开头第一个括号视为字幕组
	if m := leadingBracket.FindStringSubmatchIndex(s); m != nil {
		rest := strings.TrimSpace(s[m[1]:])
		rest = strings.TrimSpace(starSegment.ReplaceAllString(rest, ""))
		if rest == "" {
			return ""
		}
		s = rest
	}

	var title string
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "【") {
		title = bracketTitle(s)
	} else {
		title = plainTitle(s)
	}

	title = tidy(title)
	if title == "" {
		return ""
	}
	return PickLatinVariant(title)
}

// bracketTitle returns the first bracket that is not a tag.
func bracketTitle(s string) string {
	for {
		m := leadingBracket.FindStringSubmatchIndex(s)
		if m == nil {
			// 剩余部分不是括号，按普通标题处理
			return plainTitle(s)
		}
		content := strings.TrimSpace(s[m[2]:m[3]])
		if content != "" && !isTag(content) {
			return content
		}
		s = s[m[1]:]
	}
}

func plainTitle(s string) string {
	cut := len(s)
	for _, re := range titleStops {
		if loc := re.FindStringIndex(s); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	t := s[:cut]
	t = trailingEp.ReplaceAllString(t, "")
	return t
}

func isTag(content string) bool {
	for _, re := range tagPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

func tidy(s string) string {
	s = spaces.ReplaceAllString(s, " ")
	return strings.Trim(s, " -_|")
}

// PickLatinVariant chooses, among "/"-separated variants of a long title,
// the one with the highest share of ASCII letters and digits. The first
// variant wins ties. Titles of 15 characters or fewer are returned as is.
func PickLatinVariant(title string) string {
	if !strings.Contains(title, "/") || utf8.RuneCountInString(title) <= 15 {
		return title
	}

	best := ""
	bestScore := -1.0
	for _, part := range strings.Split(title, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if score := asciiRatio(part); score > bestScore {
			best, bestScore = part, score
		}
	}
	if best == "" {
		return title
	}
	return best
}

func asciiRatio(s string) float64 {
	total, alnum := 0, 0
	for _, r := range s {
		total++
		if r < utf8.RuneSelf && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			alnum++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alnum) / float64(total)
}
