package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/caldash/internal/middleware"
	"github.com/hitoshi/caldash/internal/model"
)

// Pinger はデータベースの疎通確認を行うインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SystemHandlerConfig はシステムエンドポイントの設定。
type SystemHandlerConfig struct {
	Version     string
	Environment string
}

// SystemHandler はヘルスチェックやAPI情報などの認証不要エンドポイント。
type SystemHandler struct {
	db     Pinger
	config SystemHandlerConfig
	now    func() time.Time
}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler(db Pinger, config SystemHandlerConfig) *SystemHandler {
	return &SystemHandler{db: db, config: config, now: time.Now}
}

type healthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
}

type infoResponse struct {
	Message     string            `json:"message"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Endpoints   map[string]string `json:"endpoints"`
}

// Health はプロセスとデータベースの状態を返す。
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "healthy",
		Timestamp:   h.now().UTC().Format(time.RFC3339),
		Environment: h.config.Environment,
	}

	if err := h.db.PingContext(r.Context()); err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		resp.Status = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Info はAPIの概要を返す。
// GET /
func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Message:     "Calendar Dashboard API",
		Version:     h.config.Version,
		Environment: h.config.Environment,
		Endpoints: map[string]string{
			"auth":     "/auth",
			"calendar": "/calendar",
			"health":   "/health",
		},
	})
}

// NotFound は存在しないルートに統一エラーフォーマットの404を返す。
func (h *SystemHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewRouteNotFoundError())
}
