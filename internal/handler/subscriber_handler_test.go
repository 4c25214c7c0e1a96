package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/model"
)

// --- モック定義 ---

// mockSubscriberService はSubscriberServiceInterfaceのモック実装。
type mockSubscriberService struct {
	subscribeFn func(ctx context.Context, rawEmail, source string) (*model.Subscriber, error)
	calls       int
}

func (m *mockSubscriberService) Subscribe(ctx context.Context, rawEmail, source string) (*model.Subscriber, error) {
	m.calls++
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, rawEmail, source)
	}
	return nil, nil
}

func postSubscribe(h *SubscriberHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/subscribers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Subscribe(w, req)
	return w
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) apiErrorBody {
	t.Helper()
	var body apiErrorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

type apiErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// --- Subscribe テスト ---

func TestSubscribe_Success_Returns201(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	var gotEmail, gotSource string
	svc := &mockSubscriberService{
		subscribeFn: func(_ context.Context, rawEmail, source string) (*model.Subscriber, error) {
			gotEmail, gotSource = rawEmail, source
			return &model.Subscriber{
				ID:        "2b1f6f0e-8d1c-4b8e-9a4c-0c6f1d7e2a11",
				Email:     "reader@example.com",
				Source:    "newsletter-page",
				CreatedAt: ts,
				UpdatedAt: ts,
			}, nil
		},
	}
	h := NewSubscriberHandler(svc, false)

	w := postSubscribe(h, `{"data":{"email":" Reader@Example.com","source":"newsletter-page"}}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	if gotEmail != " Reader@Example.com" || gotSource != "newsletter-page" {
		t.Errorf("service received (%q, %q)", gotEmail, gotSource)
	}

	var resp struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				Email     string `json:"email"`
				Source    string `json:"source"`
				CreatedAt string `json:"createdAt"`
				UpdatedAt string `json:"updatedAt"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.ID != "2b1f6f0e-8d1c-4b8e-9a4c-0c6f1d7e2a11" {
		t.Errorf("id = %q", resp.Data.ID)
	}
	if resp.Data.Attributes.Email != "reader@example.com" {
		t.Errorf("email = %q", resp.Data.Attributes.Email)
	}
	if resp.Data.Attributes.Source != "newsletter-page" {
		t.Errorf("source = %q", resp.Data.Attributes.Source)
	}
	if resp.Data.Attributes.CreatedAt != "2026-03-01T09:30:00Z" {
		t.Errorf("createdAt = %q", resp.Data.Attributes.CreatedAt)
	}
	if resp.Data.Attributes.UpdatedAt != resp.Data.Attributes.CreatedAt {
		t.Errorf("updatedAt = %q, want createdAt", resp.Data.Attributes.UpdatedAt)
	}
}

func TestSubscribe_MissingDataPassesEmptyEmail(t *testing.T) {
	var called bool
	svc := &mockSubscriberService{
		subscribeFn: func(_ context.Context, rawEmail, source string) (*model.Subscriber, error) {
			called = true
			if rawEmail != "" || source != "" {
				t.Errorf("service received (%q, %q), want empty values", rawEmail, source)
			}
			return nil, model.NewEmailRequiredError()
		},
	}
	h := NewSubscriberHandler(svc, false)

	w := postSubscribe(h, `{}`)

	if !called {
		t.Fatal("service should be called so the email requirement is enforced in one place")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := decodeAPIError(t, w); body.Message != "email required" {
		t.Errorf("message = %q, want %q", body.Message, "email required")
	}
}

func TestSubscribe_EmptyBodyIsEmailRequired(t *testing.T) {
	for _, body := range []string{``, `{}`, `{"data":null}`} {
		var gotEmail *string
		svc := &mockSubscriberService{
			subscribeFn: func(_ context.Context, rawEmail, _ string) (*model.Subscriber, error) {
				gotEmail = &rawEmail
				return nil, model.NewEmailRequiredError()
			},
		}
		h := NewSubscriberHandler(svc, false)

		w := postSubscribe(h, body)

		if gotEmail == nil || *gotEmail != "" {
			t.Errorf("body %q: service should be called with an empty email", body)
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
		if got := decodeAPIError(t, w); got.Code != model.ErrCodeEmailRequired {
			t.Errorf("body %q: code = %q, want %q", body, got.Code, model.ErrCodeEmailRequired)
		}
	}
}

func TestSubscribe_InvalidJSON_Returns400(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "壊れたJSON", body: `{"data":`},
		{name: "emailが文字列でない", body: `{"data":{"email":42}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSubscriberService{}
			h := NewSubscriberHandler(svc, false)

			w := postSubscribe(h, tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if body := decodeAPIError(t, w); body.Code != model.ErrCodeInvalidRequest {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidRequest)
			}
			if svc.calls != 0 {
				t.Errorf("service should not be called, got %d calls", svc.calls)
			}
		})
	}
}

func TestSubscribe_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "email required", err: model.NewEmailRequiredError(), wantStatus: http.StatusBadRequest, wantCode: model.ErrCodeEmailRequired},
		{name: "invalid email", err: model.NewInvalidEmailError(), wantStatus: http.StatusBadRequest, wantCode: model.ErrCodeInvalidEmail},
		{name: "already subscribed", err: model.NewAlreadySubscribedError(), wantStatus: http.StatusBadRequest, wantCode: model.ErrCodeAlreadySubscribed},
		{name: "internal", err: model.NewInternalError("Failed to process subscription", errors.New("pq: connection refused")), wantStatus: http.StatusInternalServerError, wantCode: model.ErrCodeInternal},
		{name: "non-API error", err: errors.New("unexpected"), wantStatus: http.StatusInternalServerError, wantCode: model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSubscriberService{
				subscribeFn: func(context.Context, string, string) (*model.Subscriber, error) {
					return nil, tt.err
				},
			}
			h := NewSubscriberHandler(svc, false)

			w := postSubscribe(h, `{"data":{"email":"reader@example.com"}}`)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeAPIError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestSubscribe_InternalErrorDetailOnlyInDevMode(t *testing.T) {
	svc := &mockSubscriberService{
		subscribeFn: func(context.Context, string, string) (*model.Subscriber, error) {
			return nil, model.NewInternalError("Failed to process subscription", errors.New("pq: connection refused"))
		},
	}

	prod := postSubscribe(NewSubscriberHandler(svc, false), `{"data":{"email":"reader@example.com"}}`)
	if body := decodeAPIError(t, prod); body.Message != "Failed to process subscription" {
		t.Errorf("production message = %q, want generic message", body.Message)
	}

	dev := postSubscribe(NewSubscriberHandler(svc, true), `{"data":{"email":"reader@example.com"}}`)
	body := decodeAPIError(t, dev)
	if !strings.HasPrefix(body.Message, "Failed to process subscription") ||
		!strings.Contains(body.Message, "pq: connection refused") {
		t.Errorf("development message = %q, want generic message plus cause", body.Message)
	}
}

func TestSubscribe_BodyTooLarge_Returns400(t *testing.T) {
	svc := &mockSubscriberService{}
	h := NewSubscriberHandler(svc, false)

	large := `{"data":{"email":"` + strings.Repeat("a", maxSubscribeBodyBytes) + `@example.com"}}`
	w := postSubscribe(h, large)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if svc.calls != 0 {
		t.Errorf("service should not be called, got %d calls", svc.calls)
	}
}
