package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
)

const toolColumns = `id, title, description, link, thumbnail, tags,
	created_at, updated_at, published_at`

// PostgresToolRepo はPostgreSQLを使用したツールリポジトリ。
type PostgresToolRepo struct {
	db *sql.DB
}

// NewPostgresToolRepo はPostgresToolRepoを生成する。
func NewPostgresToolRepo(db *sql.DB) *PostgresToolRepo {
	return &PostgresToolRepo{db: db}
}

// ListPublished は公開済みツールをタイトル昇順で取得し、総件数とともに返す。
func (r *PostgresToolRepo) ListPublished(ctx context.Context, page model.Page) ([]*model.Tool, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tools WHERE published_at IS NOT NULL`,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tools: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+toolColumns+`
		 FROM tools
		 WHERE published_at IS NOT NULL
		 ORDER BY title ASC, id ASC
		 LIMIT $1 OFFSET $2`,
		page.Size, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	tools := make([]*model.Tool, 0, page.Size)
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tool row: %w", err)
		}
		tools = append(tools, tool)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate tools: %w", err)
	}

	return tools, total, nil
}

// FindPublishedByID は指定IDの公開済みツールを取得する。見つからない場合はnilを返す。
func (r *PostgresToolRepo) FindPublishedByID(ctx context.Context, id int64) (*model.Tool, error) {
	tool, err := scanTool(r.db.QueryRowContext(ctx,
		`SELECT `+toolColumns+`
		 FROM tools
		 WHERE id = $1 AND published_at IS NOT NULL`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tool by ID: %w", err)
	}
	return tool, nil
}

func scanTool(s rowScanner) (*model.Tool, error) {
	var (
		tool        model.Tool
		tags        pq.StringArray
		publishedAt sql.NullTime
	)
	if err := s.Scan(
		&tool.ID, &tool.Title, &tool.Description, &tool.Link, &tool.Thumbnail, &tags,
		&tool.CreatedAt, &tool.UpdatedAt, &publishedAt,
	); err != nil {
		return nil, err
	}

	tool.Tags = []string(tags)
	if tool.Tags == nil {
		tool.Tags = []string{}
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		tool.PublishedAt = &t
	}
	return &tool, nil
}

// compile-time interface check
var _ ToolRepository = (*PostgresToolRepo)(nil)
