// Package subscriber はニュースレター購読者登録のドメインロジックを提供する。
package subscriber

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/metrics"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/repository"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/security"
)

// emailPattern は local@domain.tld 形式の簡易チェック。
// 空白と@を含まない文字列が @ と . で区切られていることのみを確認する。
// \sはASCII空白のみに一致するため、Unicodeの空白（\p{Z}、NEL、BOM）も明示的に除外する。
var emailPattern = regexp.MustCompile(`^[^\s\p{Z}\x{0085}\x{FEFF}@]+@[^\s\p{Z}\x{0085}\x{FEFF}@]+\.[^\s\p{Z}\x{0085}\x{FEFF}@]+$`)

// internalErrorMessage は内部エラー時に呼び出し元へ返す汎用メッセージ。
const internalErrorMessage = "Failed to process subscription"

// Service は購読者登録のサービス層。
// 入力検証 → 正規化 → 排他的な作成 のフローを統括する。
type Service struct {
	repo      repository.SubscriberRepository
	sanitizer security.TextSanitizerService
	metrics   metrics.SubscriptionRecorder
	now       func() time.Time
	newID     func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.SubscriberRepository,
	sanitizer security.TextSanitizerService,
	recorder metrics.SubscriptionRecorder,
) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   recorder,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Subscribe はメールアドレスを検証・正規化し、購読者を1件だけ作成する。
//
// 同一の正規化済みメールアドレスに対する同時リクエストのうち成功するのは1件のみで、
// それ以外はALREADY_SUBSCRIBEDエラーとなる。排他制御はストレージ側で行う。
// ストレージ障害はINTERNAL_ERRORとして返し、原因はCauseに保持する。
func (s *Service) Subscribe(ctx context.Context, rawEmail, source string) (*model.Subscriber, error) {
	// 1〜3. 検証と正規化（ストレージには触れない）
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		s.metrics.RecordSubscription(metrics.SubscriptionInvalid)
		return nil, err
	}

	// TIMESTAMPTZの精度に合わせ、返却値とDBの値を一致させる
	now := s.now().UTC().Truncate(time.Microsecond)
	sub := &model.Subscriber{
		ID:        s.newID(),
		Email:     email,
		Source:    s.normalizeSource(source),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 4〜7. 排他的な存在チェックと作成
	start := time.Now()
	err = s.repo.CreateExclusive(ctx, sub)
	s.metrics.RecordSubscribeDuration(time.Since(start))

	switch {
	case err == nil:
		s.metrics.RecordSubscription(metrics.SubscriptionCreated)
		slog.Info("購読者を登録しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("source", sub.Source),
		)
		return sub, nil
	case errors.Is(err, repository.ErrDuplicateEmail):
		s.metrics.RecordSubscription(metrics.SubscriptionDuplicate)
		return nil, model.NewAlreadySubscribedError()
	default:
		s.metrics.RecordSubscription(metrics.SubscriptionError)
		return nil, model.NewInternalError(internalErrorMessage, err)
	}
}

// normalizeSource はsourceからマークアップを除去し、空の場合はデフォルト値を返す。
func (s *Service) normalizeSource(source string) string {
	cleaned := s.sanitizer.SanitizeText(source)
	if cleaned == "" {
		return model.DefaultSubscriberSource
	}
	return cleaned
}

// NormalizeEmail はメールアドレスを検証し、小文字化・前後空白除去した値を返す。
// 未入力の場合はEMAIL_REQUIRED、形式不正の場合はINVALID_EMAILを返す。
func NormalizeEmail(rawEmail string) (string, error) {
	trimmed := strings.TrimSpace(rawEmail)
	if trimmed == "" {
		return "", model.NewEmailRequiredError()
	}
	if !emailPattern.MatchString(trimmed) {
		return "", model.NewInvalidEmailError()
	}
	return strings.ToLower(trimmed), nil
}
