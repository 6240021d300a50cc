package audithttp

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-access/internal/audit"
	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

const maxRange = 90 * 24 * time.Hour

// Guard membatasi akses endpoint audit.
type Guard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
}

// Handler menyediakan endpoint audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *audit.Service
	guard   Guard
	now     func() time.Time
}

// NewHandler membuat handler audit timeline.
func NewHandler(logger *slog.Logger, service *audit.Service, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload, err := audit.WriteCSV(rows)
	if err != nil {
		h.logger.Error("audit export csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	filename := fmt.Sprintf("audit-%s-%s.csv", filters.From.Format("20060102"), filters.To.Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// parseFilters membaca query string. Default rentang 7 hari terakhir, maksimal 90 hari.
func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()
	to := now.Add(24 * time.Hour).Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -7)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return audit.TimelineFilters{}, validationError("from must be YYYY-MM-DD")
		}
		from = parsed
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return audit.TimelineFilters{}, validationError("to must be YYYY-MM-DD")
		}
		// to bersifat inklusif
		to = parsed.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		return audit.TimelineFilters{}, validationError("from must be before to")
	}
	if to.Sub(from) > maxRange {
		return audit.TimelineFilters{}, validationError("range must not exceed 90 days")
	}
	filters := audit.TimelineFilters{
		From:     from,
		To:       to,
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	var err error
	if filters.Page, err = optionalInt(q.Get("page"), "page"); err != nil {
		return audit.TimelineFilters{}, err
	}
	if filters.PageSize, err = optionalInt(q.Get("page_size"), "page_size"); err != nil {
		return audit.TimelineFilters{}, err
	}
	return filters, nil
}

func optionalInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, validationError(field + " must be a positive integer")
	}
	return v, nil
}

func validationError(message string) error {
	return shared.Detail(shared.ErrValidation, message)
}
