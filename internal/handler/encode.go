package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/stats"
)

const dateLayout = "2006-01-02"

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeCategory(e *jx.Encoder, c catalog.Category) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.ObjEnd()
}

func (h *Handler) mediaURL(e *jx.Encoder, path string) {
	if path == "" {
		e.Null()
		return
	}
	e.Str(h.mediaBaseURL + "/" + path)
}

func (h *Handler) encodeProduct(e *jx.Encoder, p catalog.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("category")
	e.Int64(p.CategoryID)
	e.FieldStart("category_name")
	e.Str(p.CategoryName)
	e.FieldStart("image")
	h.mediaURL(e, p.ImagePath)
	e.FieldStart("thumbnail")
	h.mediaURL(e, p.ThumbnailPath)
	e.FieldStart("created_at")
	e.Str(p.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("customer")
	e.Int64(o.CustomerID)
	e.FieldStart("shipping_address")
	e.Str(o.ShippingAddress)
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("payment_due_date")
	e.Str(o.PaymentDueDate.Format(dateLayout))
	e.FieldStart("total_price")
	encodeMoney(e, o.TotalPrice)
	e.FieldStart("is_paid")
	e.Bool(o.IsPaid)
	e.FieldStart("payment_reminder_sent")
	e.Bool(o.PaymentReminderSent)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product")
		e.Int64(it.ProductID)
		e.FieldStart("product_name")
		e.Str(it.ProductName)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price")
		encodeMoney(e, it.UnitPrice)
		e.FieldStart("line_total")
		encodeMoney(e, it.LineTotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeProductUnits(e *jx.Encoder, u stats.ProductUnits) {
	e.ObjStart()
	e.FieldStart("product_id")
	e.Int64(u.ProductID)
	e.FieldStart("product_name")
	e.Str(u.ProductName)
	e.FieldStart("units_ordered")
	e.Int64(u.UnitsOrdered)
	e.ObjEnd()
}

// encodePage writes {"count": count, "results": [...]}.
func encodePage(e *jx.Encoder, count int, results func(e *jx.Encoder)) {
	e.ObjStart()
	e.FieldStart("count")
	e.Int(count)
	e.FieldStart("results")
	e.ArrStart()
	results(e)
	e.ArrEnd()
	e.ObjEnd()
}
