package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/stats"
	"github.com/xenking/storefront/internal/jobs"
)

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, badRequest("%s: expected YYYY-MM-DD", name)
	}
	return t, nil
}

func (h *Handler) topProducts(w http.ResponseWriter, r *http.Request) {
	var (
		q   stats.Query
		err error
	)
	if q.From, err = parseDateParam(r, "date_from"); err != nil {
		h.fail(w, r, err)
		return
	}
	if q.To, err = parseDateParam(r, "date_to"); err != nil {
		h.fail(w, r, err)
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			h.fail(w, r, badRequest("limit: must be an integer"))
			return
		}
	}

	res, err := h.stats.TopProducts(r.Context(), auth.FromContext(r.Context()), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, u := range res {
			encodeProductUnits(e, u)
		}
		e.ArrEnd()
	})
}

// triggerPaymentReminders enqueues a reminder run for the worker.
func (h *Handler) triggerPaymentReminders(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := auth.RequireSeller(p); err != nil {
		h.fail(w, r, err)
		return
	}
	t := jobs.NewTrigger(r.Context(), p.Username, h.now())
	if err := h.triggers.Push(r.Context(), t); err != nil {
		h.fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Payment reminder run requested", zap.String("by", p.Username))

	writeJSON(w, http.StatusAccepted, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("status")
		e.Str("queued")
		e.ObjEnd()
	})
}
