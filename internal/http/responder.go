package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/workshop-queue/internal/queue"
)

var (
	errBadRequestBody = errors.New("無効なリクエスト形式です。")
	errInvalidEntryID = errors.New("無効な整理券 ID です。")
	errInvalidCode    = errors.New("無効な確認コードです。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps the queue error taxonomy to HTTP statuses with
// localized, user-presentable messages. Callers render a typed reason, never
// the raw error text.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	kind := queue.ErrorKind(err)
	switch {
	case errors.Is(err, queue.ErrEntryNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: "ENTRY_NOT_FOUND",
			Message:   "指定された整理券が見つかりません。",
		})
	case errors.Is(err, queue.ErrQueueClosed):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "QUEUE_CLOSED",
			Message:   "現在は受付時間外です。",
		})
	case errors.Is(err, queue.ErrNoEntryAvailable):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: "NO_ENTRY_AVAILABLE",
			Message:   "呼び出し可能なお客様がいません。",
		})
	case errors.Is(err, queue.ErrCodeExpired):
		r.writeJSON(ctx, w, http.StatusGone, errorResponse{
			ErrorCode: "CODE_EXPIRED",
			Message:   "確認コードの有効期限が切れています。",
		})
	case errors.Is(err, queue.ErrInvalidPayload):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: "INVALID_PAYLOAD",
			Message:   "QR コードを読み取れませんでした。",
		})
	case errors.Is(err, queue.ErrWrongQRType):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: "WRONG_QR_TYPE",
			Message:   "整理券の QR コードではありません。",
		})
	case errors.Is(err, queue.ErrWorkOrderFailed):
		r.loggerFor(ctx).ErrorContext(ctx, "work order creation failed", "error", err)
		r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{
			ErrorCode: "WORK_ORDER_FAILED",
			Message:   "作業指示書の作成に失敗しました。もう一度お試しください。",
		})
	case errors.Is(err, queue.ErrTimerStartFailed):
		r.loggerFor(ctx).ErrorContext(ctx, "timer start failed", "error", err)
		r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{
			ErrorCode: "TIMER_START_FAILED",
			Message:   "作業タイマーを開始できませんでした。もう一度スキャンしてください。",
		})
	case errors.Is(err, queue.ErrAssignmentFailed):
		r.loggerFor(ctx).ErrorContext(ctx, "assignment failed", "error", err)
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "ASSIGNMENT_FAILED",
			Message:   "整理券の発行に失敗しました。しばらくしてからお試しください。",
		})
	case errors.Is(err, queue.ErrStoreUnavailable):
		r.loggerFor(ctx).ErrorContext(ctx, "store unavailable", "error", err)
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "STORE_UNAVAILABLE",
			Message:   "一時的に処理を受け付けられません。しばらくしてからお試しください。",
		})
	default:
		var transitionErr *queue.InvalidTransitionError
		if errors.As(err, &transitionErr) {
			r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
				ErrorCode: "INVALID_TRANSITION",
				Message:   "この状態からその操作は実行できません。",
			})
			return
		}
		var stateErr *queue.InvalidStateError
		if errors.As(err, &stateErr) {
			r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
				ErrorCode: "INVALID_STATE",
				Message:   localizedStateMessage(stateErr.Actual),
			})
			return
		}
		var vErr *queue.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Message: "入力内容に誤りがあります。",
				Errors:  localizeValidationErrors(vErr),
			})
			return
		}

		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "kind", kind, "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusGone:
		return "このリソースは利用できなくなりました。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizedStateMessage(actual queue.Status) string {
	switch actual {
	case queue.StatusWaiting:
		return "まだ呼び出されていません。呼び出しをお待ちください。"
	case queue.StatusInService:
		return "この整理券はすでに受付済みです。"
	case queue.StatusServed:
		return "この整理券の対応はすでに完了しています。"
	case queue.StatusCancelled:
		return "この整理券はキャンセルされています。"
	case queue.StatusNoShow:
		return "この整理券は無効になっています。"
	default:
		return "この状態では受付できません。"
	}
}

func localizeValidationErrors(vErr *queue.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "customer_id is required":
		return "お客様 ID は必須です。"
	case "service_type must be appointment, direct_work_order, or emergency":
		return "サービス種別の指定が不正です。"
	case "technician_id is required":
		return "担当者 ID は必須です。"
	case "entry_id is required":
		return "整理券 ID は必須です。"
	case "unknown status":
		return "状態の指定が不正です。"
	case "assigned_to is required for called":
		return "呼び出しには担当者の指定が必要です。"
	case "work_order_id is required for in_service":
		return "受付には作業指示書の指定が必要です。"
	case "override must be open, closed, or empty":
		return "営業状態の上書き指定が不正です。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
