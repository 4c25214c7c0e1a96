// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultSubscriberSource は購読経路が指定されなかった場合の既定値。
const DefaultSubscriberSource = "website"

// Subscriber はニュースレター購読者を表す。
// Emailは正規化（前後の空白除去・小文字化）済みで、全購読者の中で一意。
// 作成後に変更・削除されることはない。
type Subscriber struct {
	ID        string
	Email     string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
