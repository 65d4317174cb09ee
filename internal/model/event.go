package model

import "time"

// CalendarEvent は上流カレンダーサービスから取得したイベントを表す。
// ローカルには永続化せず、1リクエストの間だけ存在する。
// JSON表現は上流のワイヤ形式（start.dateTime等）に合わせている。
// Descriptionは編集でそのまま書き戻せるよう上流の値を変更しない。
type CalendarEvent struct {
	ID              string          `json:"id"`
	Summary         string          `json:"summary"`
	Description     string          `json:"description,omitempty"`
	DescriptionHTML string          `json:"descriptionHtml,omitempty"` // HTMLとして描画する場合に使うサニタイズ済みの説明文
	Location        string          `json:"location,omitempty"`
	Status          string          `json:"status,omitempty"`
	HTMLLink        string          `json:"htmlLink,omitempty"`
	Start           EventTime       `json:"start"`
	End             EventTime       `json:"end"`
	Attendees       []EventAttendee `json:"attendees,omitempty"`
	Reminders       *EventReminders `json:"reminders,omitempty"`
	Created         string          `json:"created,omitempty"`
	Updated         string          `json:"updated,omitempty"`
}

// EventTime はイベントの開始・終了時刻。
// 終日イベントはDate、時刻指定イベントはDateTimeを持つ。
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// EventAttendee は参加者情報。解釈せずにそのまま返す。
type EventAttendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
	Optional       bool   `json:"optional,omitempty"`
}

// EventReminders はリマインダー設定。解釈せずにそのまま返す。
type EventReminders struct {
	UseDefault bool                    `json:"useDefault"`
	Overrides  []EventReminderOverride `json:"overrides,omitempty"`
}

// EventReminderOverride は個別リマインダー。
type EventReminderOverride struct {
	Method  string `json:"method"`
	Minutes int64  `json:"minutes"`
}

// EventDraft はイベント作成・更新リクエストの入力。
// start/endはRFC 3339形式。end >= start の検証は行わない（上流に委ねる）。
type EventDraft struct {
	Summary     string   `json:"summary" validate:"required"`
	Description string   `json:"description"`
	Start       string   `json:"start" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	End         string   `json:"end" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	TimeZone    string   `json:"timeZone" validate:"omitempty,timezone"`
	Location    string   `json:"location"`
	Attendees   []string `json:"attendees" validate:"omitempty,dive,email"`
}

// ListOptions はイベント一覧取得の条件。ゼロ値の項目はデフォルトが適用される。
type ListOptions struct {
	TimeMin    time.Time
	TimeMax    time.Time
	MaxResults int64
}
