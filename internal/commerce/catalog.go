package commerce

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/minimercado-till/internal/domain/catalog"
)

// FetchCatalog loads every product from GET /catalogo.
func (c *Client) FetchCatalog(ctx context.Context) ([]catalog.Product, error) {
	body, err := c.do(ctx, http.MethodGet, c.endpoint(catalogPath, nil), nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch catalog")
	}
	products, err := decodeProducts(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return products, nil
}

func decodeProducts(data []byte) ([]catalog.Product, error) {
	d := jx.DecodeBytes(data)
	products := make([]catalog.Product, 0)
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product %d", len(products))
		}
		products = append(products, p)
		return nil
	}); err != nil {
		return nil, err
	}
	return products, nil
}

// decodeProduct reads one catalog record. Unknown fields are kept in Extra.
func decodeProduct(d *jx.Decoder) (catalog.Product, error) {
	var p catalog.Product
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = decodeScalarString(d)
		case "nombre":
			p.Name, err = decodeOptionalString(d)
		case "codigoBarras":
			p.Barcode, err = decodeOptionalString(d)
		case "categoria":
			p.Category, err = decodeOptionalString(d)
		case "precio":
			p.Price, err = decodeDecimal(d)
		case "stock":
			p.Stock, err = decodeStock(d)
		default:
			raw, rerr := d.Raw()
			if rerr != nil {
				return rerr
			}
			if p.Extra == nil {
				p.Extra = make(map[string]jx.Raw)
			}
			p.Extra[string(key)] = append(jx.Raw(nil), raw...)
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return catalog.Product{}, err
	}
	if p.ID == "" {
		return catalog.Product{}, errors.New("missing id")
	}
	return p, nil
}

// decodeScalarString accepts a string or a number and returns its text.
func decodeScalarString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return string(n), nil
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}

func decodeOptionalString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return decodeScalarString(d)
}

// decodeDecimal parses a price given as a JSON number or numeric string
// without passing through float64.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := decodeScalarString(d)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %q", s)
	}
	return v, nil
}

func decodeStock(d *jx.Decoder) (int, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return 0, err
	}
	if !v.Equal(v.Truncate(0)) {
		return 0, errors.Errorf("stock %s is not a whole number", v)
	}
	return int(v.IntPart()), nil
}
