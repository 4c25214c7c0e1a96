// Package content は公開記事とツールディレクトリの読み取りロジックを提供する。
package content

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/cache"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/metrics"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/repository"
)

// ページネーションの既定値と上限
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// sharedLoadTimeout はキャッシュミス時の共有読み取り1回あたりの上限時間。
const sharedLoadTimeout = 10 * time.Second

// PostList は記事一覧とページネーション情報。
type PostList struct {
	Posts []*model.Post
	Meta  model.PageMeta
}

// ToolList はツール一覧とページネーション情報。
type ToolList struct {
	Tools []*model.Tool
	Meta  model.PageMeta
}

// Service はコンテンツ読み取りのサービス層。
// リポジトリの前段にリードスルーキャッシュを置く。
type Service struct {
	posts   repository.PostRepository
	tools   repository.ToolRepository
	cache   cache.Cache
	metrics metrics.CacheRecorder

	// group はキャッシュミス時の同一キーへのリポジトリ読み取りを1回にまとめる。
	group singleflight.Group
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	posts repository.PostRepository,
	tools repository.ToolRepository,
	c cache.Cache,
	recorder metrics.CacheRecorder,
) *Service {
	return &Service{
		posts:   posts,
		tools:   tools,
		cache:   c,
		metrics: recorder,
	}
}

// ParsePage はクエリ文字列のページ番号・ページサイズを解析する。
// 空文字は既定値として扱う。
func ParsePage(rawPage, rawPageSize string) (model.Page, error) {
	page := model.Page{Number: DefaultPage, Size: DefaultPageSize}

	if rawPage != "" {
		n, err := strconv.Atoi(rawPage)
		if err != nil {
			return model.Page{}, model.NewInvalidPaginationError("page must be an integer")
		}
		page.Number = n
	}
	if rawPageSize != "" {
		n, err := strconv.Atoi(rawPageSize)
		if err != nil {
			return model.Page{}, model.NewInvalidPaginationError("pageSize must be an integer")
		}
		page.Size = n
	}

	if err := validatePage(page); err != nil {
		return model.Page{}, err
	}
	return page, nil
}

func validatePage(p model.Page) error {
	if p.Number < 1 {
		return model.NewInvalidPaginationError("page must be at least 1")
	}
	if p.Size < 1 || p.Size > MaxPageSize {
		return model.NewInvalidPaginationError(fmt.Sprintf("pageSize must be between 1 and %d", MaxPageSize))
	}
	// OFFSETの計算がオーバーフローしないページ番号のみ受け付ける
	if p.Number > math.MaxInt/p.Size {
		return model.NewInvalidPaginationError("page is too large")
	}
	return nil
}

// ListPosts は公開済み記事を新しい順に取得する。
func (s *Service) ListPosts(ctx context.Context, page model.Page) (*PostList, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("posts:page=%d:size=%d", page.Number, page.Size)
	var cached PostList
	if s.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	return loadShared(ctx, s, key, func(ctx context.Context) (*PostList, error) {
		posts, total, err := s.posts.ListPublished(ctx, page)
		if err != nil {
			return nil, model.NewInternalError("Failed to load posts", err)
		}

		result := &PostList{Posts: posts, Meta: model.NewPageMeta(page, total)}
		s.store(ctx, key, result)
		return result, nil
	})
}

// PostBySlug はslugで公開済み記事を取得する。存在しない場合はPOST_NOT_FOUNDを返す。
func (s *Service) PostBySlug(ctx context.Context, slug string) (*model.Post, error) {
	key := "post:slug=" + slug
	var cached model.Post
	if s.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	return loadShared(ctx, s, key, func(ctx context.Context) (*model.Post, error) {
		post, err := s.posts.FindPublishedBySlug(ctx, slug)
		if err != nil {
			return nil, model.NewInternalError("Failed to load post", err)
		}
		if post == nil {
			return nil, model.NewPostNotFoundError(slug)
		}

		s.store(ctx, key, post)
		return post, nil
	})
}

// FilterPostsBySlug はslugの完全一致で記事一覧を絞り込む。
// 結果は0件または1件で、一覧と同じ形式で返す。
func (s *Service) FilterPostsBySlug(ctx context.Context, slug string, page model.Page) (*PostList, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}

	post, err := s.PostBySlug(ctx, slug)
	if err != nil {
		if model.IsNotFoundError(err) {
			return &PostList{Posts: []*model.Post{}, Meta: model.NewPageMeta(page, 0)}, nil
		}
		return nil, err
	}

	posts := []*model.Post{post}
	if page.Offset() >= 1 {
		posts = []*model.Post{}
	}
	return &PostList{Posts: posts, Meta: model.NewPageMeta(page, 1)}, nil
}

// ListTools は公開済みツールをタイトル順に取得する。
func (s *Service) ListTools(ctx context.Context, page model.Page) (*ToolList, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("tools:page=%d:size=%d", page.Number, page.Size)
	var cached ToolList
	if s.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	return loadShared(ctx, s, key, func(ctx context.Context) (*ToolList, error) {
		tools, total, err := s.tools.ListPublished(ctx, page)
		if err != nil {
			return nil, model.NewInternalError("Failed to load tools", err)
		}

		result := &ToolList{Tools: tools, Meta: model.NewPageMeta(page, total)}
		s.store(ctx, key, result)
		return result, nil
	})
}

// ToolByID はIDで公開済みツールを取得する。存在しない場合はTOOL_NOT_FOUNDを返す。
func (s *Service) ToolByID(ctx context.Context, id int64) (*model.Tool, error) {
	key := fmt.Sprintf("tool:id=%d", id)
	var cached model.Tool
	if s.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	return loadShared(ctx, s, key, func(ctx context.Context) (*model.Tool, error) {
		tool, err := s.tools.FindPublishedByID(ctx, id)
		if err != nil {
			return nil, model.NewInternalError("Failed to load tool", err)
		}
		if tool == nil {
			return nil, model.NewToolNotFoundError(strconv.FormatInt(id, 10))
		}

		s.store(ctx, key, tool)
		return tool, nil
	})
}

// loadShared はkeyごとにfnの同時実行を1回にまとめ、結果を全呼び出し元で共有する。
// fnには呼び出し元のキャンセルから切り離したコンテキストを渡すため、
// 先に待ち始めたリクエストが切断されても他の待機中のリクエストは影響を受けない。
// 各呼び出し元は自身のctxが終了した時点で待機をやめる。
func loadShared[T any](ctx context.Context, s *Service, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		return fn(loadCtx)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// lookup はキャッシュを参照する。キャッシュのエラーはミスとして扱う。
func (s *Service) lookup(ctx context.Context, key string, dst any) bool {
	hit, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		slog.Warn("コンテンツキャッシュの取得に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		hit = false
	}
	s.metrics.RecordCacheLookup(hit)
	return hit
}

// store はキャッシュに保存する。失敗してもリクエストは失敗させない。
func (s *Service) store(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value); err != nil {
		slog.Warn("コンテンツキャッシュの保存に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
