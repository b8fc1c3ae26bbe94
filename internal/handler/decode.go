package handler

import (
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// decodeDecimal accepts both "9.50" and 9.50.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, badRequest("%s: must be a decimal number", field)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, badRequest("%s: must be a decimal number", field)
	}
	return v, nil
}

func decodeInt64(d *jx.Decoder, field string) (int64, error) {
	if d.Next() != jx.Number {
		return 0, badRequest("%s: must be an integer", field)
	}
	v, err := d.Int64()
	if err != nil {
		return 0, badRequest("%s: must be an integer", field)
	}
	return v, nil
}

// decodeOptStr reads a string, treating null as empty.
func decodeOptStr(d *jx.Decoder, field string) (string, error) {
	switch d.Next() {
	case jx.Null:
		return "", d.Null()
	case jx.String:
		return d.Str()
	default:
		return "", badRequest("%s: must be a string", field)
	}
}
