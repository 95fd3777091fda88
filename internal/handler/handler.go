// Package handler реализует служебные HTTP-эндпоинты процесса:
// проверку доступности и просмотр баланса переплат. Бизнес-операции
// этим сервером не обслуживаются — их ведёт шлюз заданий.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Service описывает операции сервиса, используемые служебными эндпоинтами.
type Service interface {
	Ping(ctx context.Context) error
	GetOverawardBalance(ctx context.Context, studentID int64) (map[string]int64, error)
}

// Handler обслуживает служебные HTTP-запросы.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// NewHandler создаёт обработчик служебных запросов.
func NewHandler(svc Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Healthz проверяет доступность хранилища.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// overawardBalanceItem — строка ответа с балансом переплат по коду выплаты.
type overawardBalanceItem struct {
	Code    string  `json:"awardCode"`
	Balance float64 `json:"balance"`
}

// GetOverawardBalance возвращает баланс переплат студента по кодам выплат.
func (h *Handler) GetOverawardBalance(w http.ResponseWriter, r *http.Request) {
	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid student id", http.StatusBadRequest)
		return
	}

	balance, err := h.svc.GetOverawardBalance(r.Context(), studentID)
	if err != nil {
		h.logger.Error("get overaward balance", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	codes := make([]string, 0, len(balance))
	for code := range balance {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	items := make([]overawardBalanceItem, 0, len(codes))
	for _, code := range codes {
		items = append(items, overawardBalanceItem{Code: code, Balance: float64(balance[code]) / 100})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(items); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}
