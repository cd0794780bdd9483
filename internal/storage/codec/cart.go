// Package codec serializes cart line items for the storage backends. Both the
// Postgres JSONB column and the Redis value use the same document so carts
// can move between backends.
package codec

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// EncodeItems writes items as a JSON array. Decimals are written as strings
// to keep their exact value.
func EncodeItems(items []cart.LineItem) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, li := range items {
		encodeItem(&e, li)
	}
	e.ArrEnd()
	return e.Bytes()
}

func encodeItem(e *jx.Encoder, li cart.LineItem) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(li.ID)
	e.FieldStart("quantity")
	e.Int(li.Quantity)
	if li.Variant != "" {
		e.FieldStart("variant")
		e.Str(li.Variant)
	}
	e.FieldStart("added_at")
	e.Str(li.AddedAt.UTC().Format(time.RFC3339Nano))

	p := li.Product
	e.FieldStart("product")
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("price")
	e.Str(p.Price.String())
	if p.SalePrice.Valid {
		e.FieldStart("sale_price")
		e.Str(p.SalePrice.Decimal.String())
	}
	e.FieldStart("stock")
	e.Int(p.Stock)
	if p.Category != "" {
		e.FieldStart("category")
		e.Str(p.Category)
	}
	e.ObjEnd()

	e.ObjEnd()
}

// DecodeItems parses a document written by EncodeItems. Unknown fields are
// skipped. An empty input decodes to no items.
func DecodeItems(data []byte) ([]cart.LineItem, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []cart.LineItem
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		li, err := decodeItem(d)
		if err != nil {
			return err
		}
		items = append(items, li)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode cart items")
	}
	return items, nil
}

func decodeItem(d *jx.Decoder) (li cart.LineItem, err error) {
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			li.ID, err = d.Str()
		case "quantity":
			li.Quantity, err = d.Int()
		case "variant":
			li.Variant, err = d.Str()
		case "added_at":
			var s string
			if s, err = d.Str(); err == nil {
				li.AddedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		case "product":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				return decodeProductField(d, key, &li)
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return li, err
}

func decodeProductField(d *jx.Decoder, key string, li *cart.LineItem) error {
	p := &li.Product
	var err error
	switch key {
	case "id":
		p.ID, err = d.Str()
	case "title":
		p.Title, err = d.Str()
	case "price":
		p.Price, err = decodeDecimal(d)
	case "sale_price":
		var v decimal.Decimal
		if v, err = decodeDecimal(d); err == nil {
			p.SalePrice = decimal.NewNullDecimal(v)
		}
	case "stock":
		p.Stock, err = d.Int()
	case "category":
		p.Category, err = d.Str()
	default:
		err = d.Skip()
	}
	if err != nil {
		return errors.Wrap(err, "product."+key)
	}
	return nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(s)
}
