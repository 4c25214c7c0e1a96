package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
)

// postColumns は記事取得時のSELECT句。scanPostの引数順と一致させること。
const postColumns = `id, document_id, title, slug, content, thumbnail_id, thumbnail_url,
	created_at, updated_at, published_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresPostRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// ListPublished は公開済み記事をpublished_at降順で取得し、総件数とともに返す。
func (r *PostgresPostRepo) ListPublished(ctx context.Context, page model.Page) ([]*model.Post, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE published_at IS NOT NULL`,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("記事数の取得に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts
		 WHERE published_at IS NOT NULL
		 ORDER BY published_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		page.Size, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	posts := make([]*model.Post, 0, page.Size)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}

	return posts, total, nil
}

// FindPublishedBySlug はslugで公開済み記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindPublishedBySlug(ctx context.Context, slug string) (*model.Post, error) {
	post, err := scanPost(r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts
		 WHERE slug = $1 AND published_at IS NOT NULL`,
		slug,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("slugによる記事の取得に失敗しました: %w", err)
	}
	return post, nil
}

// scanPost は1行分の記事を読み取る。
func scanPost(s rowScanner) (*model.Post, error) {
	var (
		post         model.Post
		content      []byte
		thumbnailID  sql.NullInt64
		thumbnailURL sql.NullString
		publishedAt  sql.NullTime
	)
	if err := s.Scan(
		&post.ID, &post.DocumentID, &post.Title, &post.Slug, &content,
		&thumbnailID, &thumbnailURL,
		&post.CreatedAt, &post.UpdatedAt, &publishedAt,
	); err != nil {
		return nil, err
	}

	if len(content) > 0 {
		post.Content = json.RawMessage(content)
	}
	if thumbnailID.Valid && thumbnailURL.Valid {
		post.Thumbnail = &model.Media{ID: thumbnailID.Int64, URL: thumbnailURL.String}
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}
	return &post, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
