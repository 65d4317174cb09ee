// Package calendar はGoogleカレンダーAPIへのプロキシを提供する。
// 利用者ごとに保存済みトークンからリクエスト単位のクライアントを生成し、
// イベントの一覧取得・取得・作成・更新・削除を中継する。
package calendar

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hitoshi/caldash/internal/model"
)

// primaryCalendarID は操作対象のカレンダー。利用者のメインカレンダーに固定する。
const primaryCalendarID = "primary"

// ClientProvider は利用者ごとのカレンダーAPIクライアントを生成するインターフェース。
type ClientProvider interface {
	ForUser(ctx context.Context, user *model.User) (*calendar.Service, error)
}

// ClientFactory は保存済みアクセストークンからカレンダーAPIクライアントを生成する。
// 状態を持たず、生成したクライアントはリクエストの間だけ使用する。
type ClientFactory struct {
	endpoint string
}

// NewClientFactory はClientFactoryを生成する。
// endpointが空の場合はGoogleの本番エンドポイントを使用する。
func NewClientFactory(endpoint string) *ClientFactory {
	return &ClientFactory{endpoint: endpoint}
}

// ForUser は利用者のアクセストークンで認可されたクライアントを返す。
// トークンは期限切れでも事前更新しない。更新は利用者が明示的に要求する。
func (f *ClientFactory) ForUser(ctx context.Context, user *model.User) (*calendar.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: user.AccessToken,
		TokenType:   "Bearer",
	})

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// compile-time interface check
var _ ClientProvider = (*ClientFactory)(nil)
