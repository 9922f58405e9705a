package commerce

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/minimercado-till/internal/domain/checkout"
)

// receiptTimeLayouts are tried in order for the "fecha" field of a receipt.
var receiptTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// SubmitSale posts the sale to /ventas/facturar?cliente_id=<id>.
func (c *Client) SubmitSale(ctx context.Context, order checkout.SaleOrder) (*checkout.Receipt, error) {
	if len(order.Items) == 0 {
		return nil, errors.New("sale has no items")
	}

	query := url.Values{"cliente_id": []string{order.CustomerID}}
	body, err := c.do(ctx, http.MethodPost, c.endpoint(salePath, query), encodeSaleItems(order.Items))
	if err != nil {
		return nil, errors.Wrap(err, "submit sale")
	}

	receipt := decodeReceipt(body)
	return &receipt, nil
}

// encodeSaleItems writes [{"id": ..., "cantidad": ...}, ...] in cart order.
func encodeSaleItems(items []checkout.SaleItem) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, item := range items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(item.ProductID)
		e.FieldStart("cantidad")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

// decodeReceipt keeps the whole body and picks up the invoice id and issue
// time when the service sends them. A body it cannot read is still a valid
// acknowledgment.
func decodeReceipt(body []byte) checkout.Receipt {
	r := checkout.Receipt{Raw: body}

	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return r
	}
	_ = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id", "factura_id", "numero":
			if r.InvoiceID != "" {
				return d.Skip()
			}
			switch d.Next() {
			case jx.String, jx.Number:
				v, err := decodeScalarString(d)
				r.InvoiceID = v
				return err
			default:
				return d.Skip()
			}
		case "fecha":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			r.IssuedAt = parseReceiptTime(s)
			return nil
		default:
			return d.Skip()
		}
	})
	return r
}

func parseReceiptTime(s string) time.Time {
	for _, layout := range receiptTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
