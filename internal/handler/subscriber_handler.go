package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
)

// maxSubscribeBodyBytes は購読登録リクエストボディの上限サイズ。
const maxSubscribeBodyBytes = 16 << 10

// SubscriberServiceInterface は購読者ハンドラーが必要とするサービスインターフェース。
type SubscriberServiceInterface interface {
	// Subscribe はメールアドレスを検証・正規化し、購読者を作成する。
	Subscribe(ctx context.Context, rawEmail, source string) (*model.Subscriber, error)
}

// SubscriberHandler は購読者登録のHTTPハンドラー。
type SubscriberHandler struct {
	service SubscriberServiceInterface
	devMode bool
}

// NewSubscriberHandler はSubscriberHandlerを生成する。
// devModeがtrueの場合、内部エラーのレスポンスに原因を含める。
func NewSubscriberHandler(service SubscriberServiceInterface, devMode bool) *SubscriberHandler {
	return &SubscriberHandler{
		service: service,
		devMode: devMode,
	}
}

// subscribeRequest は購読登録リクエストのボディ。
//
//	{ "data": { "email": "...", "source": "..." } }
type subscribeRequest struct {
	Data *struct {
		Email  string `json:"email"`
		Source string `json:"source"`
	} `json:"data"`
}

// subscriberResponse は購読者のAPIレスポンス。
type subscriberResponse struct {
	Data subscriberData `json:"data"`
}

type subscriberData struct {
	ID         string               `json:"id"`
	Attributes subscriberAttributes `json:"attributes"`
}

type subscriberAttributes struct {
	Email     string    `json:"email"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Subscribe はニュースレター購読登録を処理する。
// POST /api/subscribers
func (h *SubscriberHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	// 空ボディはdataなしとして扱い、メールアドレス未入力として検証させる
	var req subscribeRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubscribeBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		handleServiceError(w, r, model.NewInvalidRequestError(), h.devMode)
		return
	}

	var email, source string
	if req.Data != nil {
		email = req.Data.Email
		source = req.Data.Source
	}

	sub, err := h.service.Subscribe(r.Context(), email, source)
	if err != nil {
		handleServiceError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusCreated, toSubscriberResponse(sub))
}

func toSubscriberResponse(sub *model.Subscriber) subscriberResponse {
	return subscriberResponse{
		Data: subscriberData{
			ID: sub.ID,
			Attributes: subscriberAttributes{
				Email:     sub.Email,
				Source:    sub.Source,
				CreatedAt: sub.CreatedAt,
				UpdatedAt: sub.UpdatedAt,
			},
		},
	}
}
