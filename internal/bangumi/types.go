package bangumi

type Images struct {
	Large  string `json:"large"`
	Common string `json:"common"`
	Medium string `json:"medium"`
	Small  string `json:"small"`
	Grid   string `json:"grid"`
}

// Subject 条目详情 (v0 API)
type Subject struct {
	ID      int    `json:"id"`
	Type    int    `json:"type"`
	Name    string `json:"name"`
	NameCN  string `json:"name_cn"`
	Summary string `json:"summary"`
	Images  Images `json:"images"`
	Date    string `json:"date"`
	Eps     int    `json:"eps"`
}

// SearchResult represents a search result item
type SearchResult struct {
	ID     int    `json:"id"`
	Type   int    `json:"type"`
	Name   string `json:"name"`
	NameCN string `json:"name_cn"`
	Images Images `json:"images"`
}

// SubjectTypeAnime 动画条目
const SubjectTypeAnime = 2
