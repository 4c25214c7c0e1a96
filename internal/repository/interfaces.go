// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
)

// ErrDuplicateEmail は正規化済みメールアドレスの購読者が既に存在することを表す。
// 事前チェックで検出した場合と、一意制約違反で検出した場合の両方で返す。
var ErrDuplicateEmail = errors.New("subscriber email already exists")

// SubscriberRepository は購読者データの永続化インターフェース。
type SubscriberRepository interface {
	// CreateExclusive は単一トランザクション内でメールアドレス単位の排他ロックを取得し、
	// 同一メールアドレスの購読者が存在しない場合のみ購読者を作成する。
	// 既に存在する場合はErrDuplicateEmailを返す。
	// エラー時はトランザクションを必ずロールバックする。
	CreateExclusive(ctx context.Context, sub *model.Subscriber) error
}

// PostRepository は公開記事の読み取りインターフェース。
type PostRepository interface {
	// ListPublished は公開済み記事をpublished_at降順で取得し、総件数とともに返す。
	ListPublished(ctx context.Context, page model.Page) ([]*model.Post, int, error)

	// FindPublishedBySlug はslugで公開済み記事を取得する。見つからない場合はnilを返す。
	FindPublishedBySlug(ctx context.Context, slug string) (*model.Post, error)
}

// ToolRepository はツールディレクトリの読み取りインターフェース。
type ToolRepository interface {
	// ListPublished は公開済みツールをタイトル昇順で取得し、総件数とともに返す。
	ListPublished(ctx context.Context, page model.Page) ([]*model.Tool, int, error)

	// FindPublishedByID は指定IDの公開済みツールを取得する。見つからない場合はnilを返す。
	FindPublishedByID(ctx context.Context, id int64) (*model.Tool, error)
}
