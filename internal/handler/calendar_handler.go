package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/caldash/internal/middleware"
	"github.com/hitoshi/caldash/internal/model"
)

const (
	// maxDraftBodyBytes はイベント入力ボディの上限サイズ。
	maxDraftBodyBytes = 1 << 20

	// maxListResults は上流APIが受け付けるmaxResultsの上限。
	maxListResults = 2500
)

// CalendarServiceInterface はカレンダーハンドラーが必要とするサービスインターフェース。
type CalendarServiceInterface interface {
	ListEvents(ctx context.Context, user *model.User, opts model.ListOptions) ([]model.CalendarEvent, error)
	UpcomingEvents(ctx context.Context, user *model.User) ([]model.CalendarEvent, error)
	GetEvent(ctx context.Context, user *model.User, eventID string) (*model.CalendarEvent, error)
	CreateEvent(ctx context.Context, user *model.User, draft *model.EventDraft) (*model.CalendarEvent, error)
	UpdateEvent(ctx context.Context, user *model.User, eventID string, draft *model.EventDraft) (*model.CalendarEvent, error)
	DeleteEvent(ctx context.Context, user *model.User, eventID string) error
}

// CalendarHandler はカレンダーイベントのHTTPハンドラー。
// すべてのルートはセッションミドルウェアの内側に配置する。
type CalendarHandler struct {
	service CalendarServiceInterface
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(service CalendarServiceInterface) *CalendarHandler {
	return &CalendarHandler{service: service}
}

// ListEvents は期間内のイベント一覧を開始時刻順で返す。
// GET /calendar/events?timeMin=&timeMax=&maxResults=
func (h *CalendarHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	events, err := h.service.ListEvents(r.Context(), user, opts)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// UpcomingEvents は直近のイベントを返す。
// GET /calendar/upcoming
func (h *CalendarHandler) UpcomingEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	events, err := h.service.UpcomingEvents(r.Context(), user)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent はイベントを1件返す。
// GET /calendar/events/{eventID}
func (h *CalendarHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	event, err := h.service.GetEvent(r.Context(), user, chi.URLParam(r, "eventID"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// CreateEvent はイベントを作成する。
// POST /calendar/events
func (h *CalendarHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	draft, ok := decodeDraft(w, r)
	if !ok {
		return
	}

	event, err := h.service.CreateEvent(r.Context(), user, draft)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent はイベントを全置換で更新する。
// PUT /calendar/events/{eventID}
func (h *CalendarHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	draft, ok := decodeDraft(w, r)
	if !ok {
		return
	}

	event, err := h.service.UpdateEvent(r.Context(), user, chi.URLParam(r, "eventID"), draft)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent はイベントを削除する。
// DELETE /calendar/events/{eventID}
func (h *CalendarHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteEvent(r.Context(), user, chi.URLParam(r, "eventID")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Event deleted successfully"})
}

// requireUser はコンテキストから認証済みユーザーを取り出す。
// 取り出せない場合は401を書き込みfalseを返す。
func requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return nil, false
	}
	return user, true
}

// parseListOptions はクエリパラメータを解析する。
// 省略された項目はゼロ値のままとし、サービス側でデフォルトを適用する。
func parseListOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	var opts model.ListOptions
	q := r.URL.Query()

	if v := q.Get("timeMin"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, model.NewInvalidQueryError("timeMin")
		}
		opts.TimeMin = t
	}

	if v := q.Get("timeMax"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, model.NewInvalidQueryError("timeMax")
		}
		opts.TimeMax = t
	}

	if v := q.Get("maxResults"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 || n > maxListResults {
			return opts, model.NewInvalidQueryError("maxResults")
		}
		opts.MaxResults = n
	}

	return opts, nil
}

// decodeDraft はリクエストボディをEventDraftとして読み込む。
// 解析できない場合は400を書き込みfalseを返す。
func decodeDraft(w http.ResponseWriter, r *http.Request) (*model.EventDraft, bool) {
	var draft model.EventDraft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDraftBodyBytes)).Decode(&draft); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidEventError("リクエストボディの解析に失敗しました"))
		return nil, false
	}
	return &draft, true
}
