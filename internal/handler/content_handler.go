package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/content"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
)

// フロントエンドが送信するクエリパラメータ名
const (
	queryPage       = "pagination[page]"
	queryPageSize   = "pagination[pageSize]"
	querySlugFilter = "filters[Slug][$eq]"
)

// ContentServiceInterface はコンテンツハンドラーが必要とするサービスインターフェース。
type ContentServiceInterface interface {
	ListPosts(ctx context.Context, page model.Page) (*content.PostList, error)
	PostBySlug(ctx context.Context, slug string) (*model.Post, error)
	FilterPostsBySlug(ctx context.Context, slug string, page model.Page) (*content.PostList, error)
	ListTools(ctx context.Context, page model.Page) (*content.ToolList, error)
	ToolByID(ctx context.Context, id int64) (*model.Tool, error)
}

// ContentHandler は公開記事とツールの読み取りHTTPハンドラー。
type ContentHandler struct {
	service ContentServiceInterface
	devMode bool
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface, devMode bool) *ContentHandler {
	return &ContentHandler{
		service: service,
		devMode: devMode,
	}
}

// listResponse は一覧APIのレスポンス。
type listResponse struct {
	Data any          `json:"data"`
	Meta listMetadata `json:"meta"`
}

type listMetadata struct {
	Pagination paginationResponse `json:"pagination"`
}

type paginationResponse struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

// singleResponse は単一リソースAPIのレスポンス。
type singleResponse struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta"`
}

// postResponse は記事のAPIレスポンス。
// フィールド名はフロントエンドが参照する既存のコンテンツ型に合わせる。
type postResponse struct {
	ID          int64           `json:"id"`
	DocumentID  string          `json:"documentId"`
	Title       string          `json:"Title"`
	Slug        string          `json:"Slug"`
	Content     json.RawMessage `json:"Content"`
	Thumbnail   *mediaResponse  `json:"Thumbnail"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	PublishedAt *time.Time      `json:"publishedAt"`
}

type mediaResponse struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// toolResponse はツールのAPIレスポンス。
type toolResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Link        string     `json:"link"`
	Thumbnail   string     `json:"thumbnail"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt"`
}

// ListPosts は公開記事一覧を返す。
// GET /api/posts?pagination[page]=1&pagination[pageSize]=10&filters[Slug][$eq]=...
// populateパラメータは受け付けるが無視する（サムネイルは常に含める）。
func (h *ContentHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := content.ParsePage(q.Get(queryPage), q.Get(queryPageSize))
	if err != nil {
		handleServiceError(w, r, err, h.devMode)
		return
	}

	var list *content.PostList
	if slug := q.Get(querySlugFilter); slug != "" {
		list, err = h.service.FilterPostsBySlug(r.Context(), slug, page)
	} else {
		list, err = h.service.ListPosts(r.Context(), page)
	}
	if err != nil {
		handleServiceError(w, r, err, h.devMode)
		return
	}

	data := make([]postResponse, len(list.Posts))
	for i, p := range list.Posts {
		data[i] = toPostResponse(p)
	}
	writeJSON(w, http.StatusOK, listResponse{Data: data, Meta: toListMetadata(list.Meta)})
}

// GetPost はslug指定で記事を返す。
// GET /api/posts/{slug}
func (h *ContentHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	post, err := h.service.PostBySlug(r.Context(), slug)
	if err != nil {
		handleServiceError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusOK, singleResponse{Data: toPostResponse(post), Meta: map[string]any{}})
}

// ListTools はツール一覧を返す。
// GET /api/tools
func (h *ContentHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := content.ParsePage(q.Get(queryPage), q.Get(queryPageSize))
	if err != nil {
		handleServiceError(w, r, err, h.devMode)
		return
	}

	list, err := h.service.ListTools(r.Context(), page)
	if err != nil {
		handleServiceError(w, r, err, h.devMode)
		return
	}

	data := make([]toolResponse, len(list.Tools))
	for i, t := range list.Tools {
		data[i] = toToolResponse(t)
	}
	writeJSON(w, http.StatusOK, listResponse{Data: data, Meta: toListMetadata(list.Meta)})
}

// GetTool はID指定でツールを返す。数値でないIDは未検出として扱う。
// GET /api/tools/{id}
func (h *ContentHandler) GetTool(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id < 1 {
		handleServiceError(w, r, model.NewToolNotFoundError(rawID), h.devMode)
		return
	}

	tool, err := h.service.ToolByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusOK, singleResponse{Data: toToolResponse(tool), Meta: map[string]any{}})
}

func toListMetadata(meta model.PageMeta) listMetadata {
	return listMetadata{
		Pagination: paginationResponse{
			Page:      meta.Page,
			PageSize:  meta.PageSize,
			PageCount: meta.PageCount,
			Total:     meta.Total,
		},
	}
}

func toPostResponse(p *model.Post) postResponse {
	resp := postResponse{
		ID:          p.ID,
		DocumentID:  p.DocumentID,
		Title:       p.Title,
		Slug:        p.Slug,
		Content:     p.Content,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		PublishedAt: p.PublishedAt,
	}
	// 本文が未設定の場合は空配列として返す
	if len(resp.Content) == 0 || string(resp.Content) == "null" {
		resp.Content = json.RawMessage("[]")
	}
	if p.Thumbnail != nil {
		resp.Thumbnail = &mediaResponse{ID: p.Thumbnail.ID, URL: p.Thumbnail.URL}
	}
	return resp
}

func toToolResponse(t *model.Tool) toolResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return toolResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Link:        t.Link,
		Thumbnail:   t.Thumbnail,
		Tags:        tags,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		PublishedAt: t.PublishedAt,
	}
}
