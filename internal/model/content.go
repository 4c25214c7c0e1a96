package model

import (
	"encoding/json"
	"time"
)

// Post は公開記事を表す。
// Contentはリッチテキストのブロック配列（JSON）で、サーバーでは解釈せずそのまま返す。
type Post struct {
	ID          int64
	DocumentID  string
	Title       string
	Slug        string
	Content     json.RawMessage
	Thumbnail   *Media
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// Media は記事に添付されたメディアを表す。
type Media struct {
	ID  int64
	URL string
}

// Tool はツールディレクトリに掲載するツールを表す。
type Tool struct {
	ID          int64
	Title       string
	Description string
	Link        string
	Thumbnail   string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// Page はページネーションの指定を表す。Numberは1始まり。
type Page struct {
	Number int
	Size   int
}

// Offset はSQLのOFFSETに渡す値を返す。
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// PageMeta はページネーション結果のメタ情報を表す。
type PageMeta struct {
	Page      int
	PageSize  int
	PageCount int
	Total     int
}

// NewPageMeta は総件数からページ数を算出してPageMetaを生成する。
func NewPageMeta(p Page, total int) PageMeta {
	pageCount := 0
	if p.Size > 0 {
		pageCount = (total + p.Size - 1) / p.Size
	}
	return PageMeta{
		Page:      p.Number,
		PageSize:  p.Size,
		PageCount: pageCount,
		Total:     total,
	}
}
