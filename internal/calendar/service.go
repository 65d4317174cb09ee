package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"google.golang.org/api/googleapi"

	"github.com/hitoshi/caldash/internal/metrics"
	"github.com/hitoshi/caldash/internal/model"
	"github.com/hitoshi/caldash/internal/security"
)

// 一覧取得のデフォルト値
const (
	DefaultListWindow     = 30 * 24 * time.Hour
	DefaultListMaxResults = 100

	UpcomingWindow     = 7 * 24 * time.Hour
	UpcomingMaxResults = 10
)

// 上流呼び出しの操作名（メトリクスとログのラベル）
const (
	opList   = "events.list"
	opGet    = "events.get"
	opInsert = "events.insert"
	opUpdate = "events.update"
	opDelete = "events.delete"
)

// Service はカレンダーイベント操作のビジネスロジックを提供する。
// 失敗時は再試行せず、上流のエラーをAPIErrorに変換して返す。
type Service struct {
	clients   ClientProvider
	sanitizer security.DescriptionSanitizer
	metrics   metrics.MetricsCollector
	validate  *validator.Validate
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	clients ClientProvider,
	sanitizer security.DescriptionSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		clients:   clients,
		sanitizer: sanitizer,
		metrics:   collector,
		validate:  newDraftValidator(),
		now:       time.Now,
	}
}

// ListEvents は指定期間のイベントを開始時刻順に返す。
// 期間と件数が未指定の場合は現在から30日間、最大100件を対象とする。
// 繰り返しイベントは個々の予定に展開される。
func (s *Service) ListEvents(ctx context.Context, user *model.User, opts model.ListOptions) ([]model.CalendarEvent, error) {
	now := s.now()
	if opts.TimeMin.IsZero() {
		opts.TimeMin = now
	}
	if opts.TimeMax.IsZero() {
		opts.TimeMax = now.Add(DefaultListWindow)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultListMaxResults
	}

	svc, err := s.clients.ForUser(ctx, user)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := svc.Events.List(primaryCalendarID).
		TimeMin(opts.TimeMin.Format(time.RFC3339)).
		TimeMax(opts.TimeMax.Format(time.RFC3339)).
		MaxResults(opts.MaxResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, s.fail(ctx, opList, user, "", start, err)
	}
	s.succeed(opList, start)

	events := make([]model.CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		events = append(events, toModelEvent(item, s.sanitizer.Sanitize))
	}
	return events, nil
}

// UpcomingEvents は今後7日間のイベントを最大10件返す。
func (s *Service) UpcomingEvents(ctx context.Context, user *model.User) ([]model.CalendarEvent, error) {
	now := s.now()
	return s.ListEvents(ctx, user, model.ListOptions{
		TimeMin:    now,
		TimeMax:    now.Add(UpcomingWindow),
		MaxResults: UpcomingMaxResults,
	})
}

// GetEvent は指定IDのイベントを返す。
func (s *Service) GetEvent(ctx context.Context, user *model.User, eventID string) (*model.CalendarEvent, error) {
	svc, err := s.clients.ForUser(ctx, user)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ev, err := svc.Events.Get(primaryCalendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, s.fail(ctx, opGet, user, eventID, start, err)
	}
	s.succeed(opGet, start)

	out := toModelEvent(ev, s.sanitizer.Sanitize)
	return &out, nil
}

// CreateEvent はドラフトからイベントを作成し、採番されたIDを含むイベントを返す。
// 入力が不正な場合は上流を呼び出さずにINVALID_EVENTを返す。
func (s *Service) CreateEvent(ctx context.Context, user *model.User, draft *model.EventDraft) (*model.CalendarEvent, error) {
	if err := validateDraft(s.validate, draft); err != nil {
		return nil, err
	}

	svc, err := s.clients.ForUser(ctx, user)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ev, err := svc.Events.Insert(primaryCalendarID, toUpstreamEvent(draft)).Context(ctx).Do()
	if err != nil {
		return nil, s.fail(ctx, opInsert, user, "", start, err)
	}
	s.succeed(opInsert, start)

	slog.Info("calendar event created",
		slog.String("user_id", user.ID),
		slog.String("event_id", ev.Id),
	)

	out := toModelEvent(ev, s.sanitizer.Sanitize)
	return &out, nil
}

// UpdateEvent は指定IDのイベントをドラフトの内容で置き換える。
// ドラフトで省略された任意項目は上流側でクリアされる。
func (s *Service) UpdateEvent(ctx context.Context, user *model.User, eventID string, draft *model.EventDraft) (*model.CalendarEvent, error) {
	if err := validateDraft(s.validate, draft); err != nil {
		return nil, err
	}

	svc, err := s.clients.ForUser(ctx, user)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ev, err := svc.Events.Update(primaryCalendarID, eventID, toUpstreamEvent(draft)).Context(ctx).Do()
	if err != nil {
		return nil, s.fail(ctx, opUpdate, user, eventID, start, err)
	}
	s.succeed(opUpdate, start)

	out := toModelEvent(ev, s.sanitizer.Sanitize)
	return &out, nil
}

// DeleteEvent は指定IDのイベントを削除する。
// 削除済みのイベントを再度削除した場合はEVENT_NOT_FOUNDを返す。
func (s *Service) DeleteEvent(ctx context.Context, user *model.User, eventID string) error {
	svc, err := s.clients.ForUser(ctx, user)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := svc.Events.Delete(primaryCalendarID, eventID).Context(ctx).Do(); err != nil {
		return s.fail(ctx, opDelete, user, eventID, start, err)
	}
	s.succeed(opDelete, start)

	slog.Info("calendar event deleted",
		slog.String("user_id", user.ID),
		slog.String("event_id", eventID),
	)
	return nil
}

func (s *Service) succeed(op string, start time.Time) {
	s.metrics.RecordUpstreamCall(op, metrics.OutcomeSuccess, time.Since(start))
}

// fail は上流エラーをAPIErrorに変換し、メトリクスとログを記録する。
// eventIDが指定された操作では404と410をEVENT_NOT_FOUNDとして扱う。
func (s *Service) fail(ctx context.Context, op string, user *model.User, eventID string, start time.Time, err error) error {
	status := 0
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		status = gErr.Code
	}

	if eventID != "" && (status == http.StatusNotFound || status == http.StatusGone) {
		s.metrics.RecordUpstreamCall(op, metrics.OutcomeNotFound, time.Since(start))
		return fmt.Errorf("%w: %v", model.NewEventNotFoundError(eventID), err)
	}

	s.metrics.RecordUpstreamCall(op, metrics.OutcomeError, time.Since(start))
	slog.WarnContext(ctx, "calendar upstream call failed",
		slog.String("operation", op),
		slog.String("user_id", user.ID),
		slog.Int("upstream_status", status),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%w: %v", model.NewUpstreamError(status), err)
}
