package calendar

import (
	"google.golang.org/api/calendar/v3"

	"github.com/hitoshi/caldash/internal/model"
)

// defaultTimeZone は入力でタイムゾーンが省略された場合に使用する。
const defaultTimeZone = "UTC"

// toUpstreamEvent は入力ドラフトを上流APIのイベントに変換する。
// リマインダーはカレンダーの既定設定に従う。
func toUpstreamEvent(draft *model.EventDraft) *calendar.Event {
	tz := draft.TimeZone
	if tz == "" {
		tz = defaultTimeZone
	}

	ev := &calendar.Event{
		Summary:     draft.Summary,
		Description: draft.Description,
		Location:    draft.Location,
		Start:       &calendar.EventDateTime{DateTime: draft.Start, TimeZone: tz},
		End:         &calendar.EventDateTime{DateTime: draft.End, TimeZone: tz},
		Reminders:   &calendar.EventReminders{UseDefault: true},
	}
	for _, email := range draft.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
	}
	return ev
}

// toModelEvent は上流APIのイベントをレスポンス用の値に変換する。
// descriptionは上流の値をそのまま返し、サニタイズ済みHTMLはDescriptionHTMLに別途格納する。
func toModelEvent(ev *calendar.Event, sanitize func(string) string) model.CalendarEvent {
	out := model.CalendarEvent{
		ID:              ev.Id,
		Summary:         ev.Summary,
		Description:     ev.Description,
		DescriptionHTML: sanitize(ev.Description),
		Location:        ev.Location,
		Status:          ev.Status,
		HTMLLink:        ev.HtmlLink,
		Start:           toModelTime(ev.Start),
		End:             toModelTime(ev.End),
		Created:         ev.Created,
		Updated:         ev.Updated,
	}

	for _, a := range ev.Attendees {
		if a == nil {
			continue
		}
		out.Attendees = append(out.Attendees, model.EventAttendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
			Optional:       a.Optional,
		})
	}

	if ev.Reminders != nil {
		r := &model.EventReminders{UseDefault: ev.Reminders.UseDefault}
		for _, o := range ev.Reminders.Overrides {
			if o == nil {
				continue
			}
			r.Overrides = append(r.Overrides, model.EventReminderOverride{Method: o.Method, Minutes: o.Minutes})
		}
		out.Reminders = r
	}

	return out
}

func toModelTime(t *calendar.EventDateTime) model.EventTime {
	if t == nil {
		return model.EventTime{}
	}
	return model.EventTime{DateTime: t.DateTime, Date: t.Date, TimeZone: t.TimeZone}
}
