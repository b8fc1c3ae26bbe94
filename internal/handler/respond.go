package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/stats"
	"github.com/xenking/storefront/internal/media"
)

var errNotFound = errors.New("not found")

// requestError is a malformed request detected by the transport layer.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// errorStatus maps domain errors to HTTP status codes. Unknown errors map
// to 500.
func errorStatus(err error) int {
	var (
		reqErr      *requestError
		catalogErr  *catalog.ValidationError
		statsErr    *stats.ValidationError
		productErr  *order.ProductNotFoundError
		quantityErr *order.InvalidQuantityError
		dupErr      *order.DuplicateProductError
		tooLarge    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.As(err, &catalogErr),
		errors.As(err, &statsErr),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrShippingAddressRequired),
		errors.Is(err, order.ErrShippingAddressTooLong),
		errors.Is(err, media.ErrInvalidFilename):
		return http.StatusBadRequest
	case errors.As(err, &productErr),
		errors.As(err, &quantityErr),
		errors.As(err, &dupErr),
		errors.Is(err, order.ErrTotalTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errNotFound),
		errors.Is(err, catalog.ErrCategoryNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrCategoryExists),
		errors.Is(err, catalog.ErrCategoryInUse),
		errors.Is(err, catalog.ErrProductInUse),
		errors.Is(err, order.ErrDuplicateItem):
		return http.StatusConflict
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"code","message"}. Server errors are logged and their
// details hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := errorMessage(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	}
	writeError(w, status, msg)
}

// errorMessage returns the innermost domain message, without the wrapping
// context added on the way up.
func errorMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeBody reads the JSON request body with the configured size limit and
// hands a decoder to fn.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequest("read body: %v", err)
	}
	if len(data) == 0 {
		return badRequest("request body is empty")
	}
	if err := fn(jx.DecodeBytes(data)); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return err
		}
		return badRequest("malformed JSON: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errNotFound
	}
	return id, nil
}

func queryPage(r *http.Request) (int, error) {
	v := r.URL.Query().Get("page")
	if v == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(v)
	if err != nil || page < 1 {
		return 0, badRequest("page: must be a positive integer")
	}
	return page, nil
}
