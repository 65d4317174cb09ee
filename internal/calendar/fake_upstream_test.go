package calendar

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
)

// fakeCalendar はGoogleカレンダーAPIのイベント操作を模倣するインメモリのテスト用サーバー。
type fakeCalendar struct {
	mu          sync.Mutex
	events      map[string]*calendar.Event
	nextID      int
	hits        int
	token       string
	forceStatus int
	lastQuery   url.Values
	server      *httptest.Server
}

func newFakeCalendar(t *testing.T) *fakeCalendar {
	t.Helper()

	f := &fakeCalendar{
		events: map[string]*calendar.Event{},
		token:  "valid-token",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendar/v3/calendars/{cal}/events", f.list)
	mux.HandleFunc("POST /calendar/v3/calendars/{cal}/events", f.insert)
	mux.HandleFunc("GET /calendar/v3/calendars/{cal}/events/{id}", f.get)
	mux.HandleFunc("PUT /calendar/v3/calendars/{cal}/events/{id}", f.update)
	mux.HandleFunc("DELETE /calendar/v3/calendars/{cal}/events/{id}", f.delete)

	f.server = httptest.NewServer(f.guard(mux))
	t.Cleanup(f.server.Close)
	return f
}

// endpoint はClientFactoryに渡すベースURLを返す。
func (f *fakeCalendar) endpoint() string {
	return f.server.URL + "/calendar/v3/"
}

func (f *fakeCalendar) hitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func (f *fakeCalendar) seed(ev *calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.Id] = ev
}

func (f *fakeCalendar) stored(id string) *calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[id]
}

func (f *fakeCalendar) failWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceStatus = status
}

func (f *fakeCalendar) query() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

// guard は呼び出し回数を数え、認可ヘッダーと強制エラーを処理する。
func (f *fakeCalendar) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits++
		forced := f.forceStatus
		token := f.token
		f.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+token {
			writeGoogleError(w, http.StatusUnauthorized, "Invalid Credentials")
			return
		}
		if forced != 0 {
			writeGoogleError(w, forced, http.StatusText(forced))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeCalendar) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	timeMin, _ := time.Parse(time.RFC3339, q.Get("timeMin"))
	timeMax, _ := time.Parse(time.RFC3339, q.Get("timeMax"))
	maxResults, _ := strconv.Atoi(q.Get("maxResults"))

	f.mu.Lock()
	f.lastQuery = q
	var items []*calendar.Event
	for _, ev := range f.events {
		start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			continue
		}
		if !timeMin.IsZero() && start.Before(timeMin) {
			continue
		}
		if !timeMax.IsZero() && !start.Before(timeMax) {
			continue
		}
		items = append(items, ev)
	}
	f.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].Start.DateTime < items[j].Start.DateTime
	})
	if maxResults > 0 && len(items) > maxResults {
		items = items[:maxResults]
	}

	writeJSON(w, http.StatusOK, &calendar.Events{Kind: "calendar#events", Items: items})
}

func (f *fakeCalendar) insert(w http.ResponseWriter, r *http.Request) {
	var ev calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeGoogleError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	f.mu.Lock()
	f.nextID++
	ev.Id = fmt.Sprintf("e-%d", f.nextID)
	ev.Status = "confirmed"
	f.events[ev.Id] = &ev
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, &ev)
}

func (f *fakeCalendar) get(w http.ResponseWriter, r *http.Request) {
	ev := f.stored(r.PathValue("id"))
	if ev == nil {
		writeGoogleError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (f *fakeCalendar) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if f.stored(id) == nil {
		writeGoogleError(w, http.StatusNotFound, "Not Found")
		return
	}

	var ev calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeGoogleError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	ev.Id = id
	ev.Status = "confirmed"
	f.seed(&ev)

	writeJSON(w, http.StatusOK, &ev)
}

func (f *fakeCalendar) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	_, ok := f.events[id]
	delete(f.events, id)
	f.mu.Unlock()

	// Googleは削除済みイベントの再削除に410を返す
	if !ok {
		writeGoogleError(w, http.StatusGone, "Resource has been deleted")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeGoogleError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"errors": []map[string]string{
				{"domain": "global", "reason": "error", "message": message},
			},
		},
	})
}
