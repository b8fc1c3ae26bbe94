package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, *o) })
}

func decodeLine(d *jx.Decoder) (order.LineRequest, error) {
	var (
		line       order.LineRequest
		hasProduct bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "product", "product_id":
			id, err := decodeInt64(d, "product")
			line.ProductID = id
			hasProduct = true
			return err
		case "quantity":
			q, err := decodeInt64(d, "quantity")
			line.Quantity = int(q)
			return err
		default:
			return d.Skip()
		}
	})
	if err == nil && !hasProduct {
		err = badRequest("product: this field is required")
	}
	return line, err
}

func (h *Handler) decodePlaceOrder(w http.ResponseWriter, r *http.Request) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := h.decodeBody(w, r, func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "shipping_address":
				req.ShippingAddress, err = decodeOptStr(d, "shipping_address")
			case "full_name":
				req.FullName, err = decodeOptStr(d, "full_name")
			case "payment_due_date":
				var v string
				if v, err = decodeOptStr(d, "payment_due_date"); err != nil || v == "" {
					return err
				}
				due, perr := time.Parse(dateLayout, v)
				if perr != nil {
					return badRequest("payment_due_date: expected YYYY-MM-DD")
				}
				req.PaymentDueDate = &due
			case "items":
				if d.Next() != jx.Array {
					return badRequest("items: must be a list")
				}
				err = d.Arr(func(d *jx.Decoder) error {
					line, err := decodeLine(d)
					if err != nil {
						return err
					}
					req.Items = append(req.Items, line)
					return nil
				})
			default:
				err = d.Skip()
			}
			return err
		})
	})
	return req, err
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := auth.RequireUser(p); err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.decodePlaceOrder(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.PlaceOrder(r.Context(), p, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeOrder(w, http.StatusCreated, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orders.List(r.Context(), auth.FromContext(r.Context()), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, res.Count, func(e *jx.Encoder) {
			for _, o := range res.Orders {
				encodeOrder(e, o)
			}
		})
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

func (h *Handler) addOrderItem(w http.ResponseWriter, r *http.Request) {
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
	var line order.LineRequest
	if err := h.decodeBody(w, r, func(d *jx.Decoder) (err error) {
		line, err = decodeLine(d)
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.AddItem(r.Context(), p, id, line)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeOrder(w, http.StatusCreated, o)
}

func (h *Handler) updateOrderItem(w http.ResponseWriter, r *http.Request) {
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
	productID, err := pathID(r, "productID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quantity := int64(-1)
	if err := h.decodeBody(w, r, func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
			if string(key) != "quantity" {
				return d.Skip()
			}
			quantity, err = decodeInt64(d, "quantity")
			return err
		})
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	if quantity < 0 {
		h.fail(w, r, badRequest("quantity: this field is required"))
		return
	}
	o, err := h.orders.UpdateItemQuantity(r.Context(), p, id, productID, int(quantity))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

func (h *Handler) removeOrderItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	productID, err := pathID(r, "productID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.RemoveItem(r.Context(), auth.FromContext(r.Context()), id, productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

func (h *Handler) markOrderPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.MarkPaid(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}
