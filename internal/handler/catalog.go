package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
)

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range cats {
			encodeCategory(e, c)
		}
		e.ArrEnd()
	})
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.catalog.GetCategory(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCategory(e, *c) })
}

func (h *Handler) decodeCategoryName(w http.ResponseWriter, r *http.Request) (string, error) {
	var name string
	err := h.decodeBody(w, r, func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "name" {
				return d.Skip()
			}
			v, err := decodeOptStr(d, "name")
			name = v
			return err
		})
	})
	return name, err
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := auth.RequireSeller(p); err != nil {
		h.fail(w, r, err)
		return
	}
	name, err := h.decodeCategoryName(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.catalog.CreateCategory(r.Context(), p, name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCategory(e, *c) })
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := auth.RequireSeller(p); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	name, err := h.decodeCategoryName(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.catalog.UpdateCategory(r.Context(), p, id, name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCategory(e, *c) })
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteCategory(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// productFilter parses the product list query parameters.
func productFilter(r *http.Request) (catalog.ProductFilter, error) {
	q := r.URL.Query()
	f := catalog.ProductFilter{
		Name:         q.Get("name"),
		Description:  q.Get("description"),
		CategoryName: q.Get("category_name"),
	}
	if v := q.Get("category"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, badRequest("category: must be an integer")
		}
		f.CategoryID = id
	}
	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"price", &f.Price},
		{"min_price", &f.MinPrice},
		{"max_price", &f.MaxPrice},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, badRequest("%s: must be a decimal number", p.name)
		}
		*p.dst = &d
	}
	ordering, err := catalog.ParseOrdering(q.Get("ordering"))
	if err != nil {
		return f, err
	}
	f.Ordering = ordering
	return f, nil
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := queryPage(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.catalog.ListProducts(r.Context(), f, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, res.Count, func(e *jx.Encoder) {
			for _, p := range res.Products {
				h.encodeProduct(e, p)
			}
		})
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

func (h *Handler) decodeProductInput(w http.ResponseWriter, r *http.Request) (catalog.ProductInput, error) {
	var (
		in       catalog.ProductInput
		hasPrice bool
	)
	err := h.decodeBody(w, r, func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "name":
				in.Name, err = decodeOptStr(d, "name")
			case "description":
				in.Description, err = decodeOptStr(d, "description")
			case "price":
				in.Price, err = decodeDecimal(d, "price")
				hasPrice = true
			case "category":
				in.CategoryID, err = decodeInt64(d, "category")
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err == nil && !hasPrice {
		err = &catalog.ValidationError{Field: "price", Message: "this field is required"}
	}
	return in, err
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := auth.RequireSeller(p); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := h.decodeProductInput(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	prod, err := h.catalog.CreateProduct(r.Context(), p, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeProduct(e, *prod) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := auth.RequireSeller(p); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := h.decodeProductInput(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	prod, err := h.catalog.UpdateProduct(r.Context(), p, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *prod) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadProductImage stores the raw request body as the product image.
func (h *Handler) uploadProductImage(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := auth.RequireSeller(p); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filename := r.URL.Query().Get("filename")
	body := http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	prod, err := h.catalog.SetProductImage(r.Context(), p, id, filename, body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *prod) })
}
