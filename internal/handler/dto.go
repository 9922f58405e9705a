package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/minimercado-till/internal/domain/cart"
	"github.com/xenking/minimercado-till/internal/domain/catalog"
	"github.com/xenking/minimercado-till/internal/domain/checkout"
	"github.com/xenking/minimercado-till/internal/money"
	"github.com/xenking/minimercado-till/internal/session"
)

// Requests.

type addItemRequest struct {
	ProductID string `json:"productId"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type setCustomerRequest struct {
	CustomerID string `json:"customerId"`
}

// setAmountRequest accepts the amount as a decimal string or a JSON number.
type setAmountRequest struct {
	AmountTendered json.RawMessage `json:"amountTendered"`
}

func (r setAmountRequest) amount() (decimal.Decimal, error) {
	if len(r.AmountTendered) == 0 || string(r.AmountTendered) == "null" {
		return decimal.Zero, &kindError{kind: errInvalidBody, detail: "amountTendered is required"}
	}

	text := string(r.AmountTendered)
	var s string
	if err := json.Unmarshal(r.AmountTendered, &s); err == nil {
		text = s
	}
	d, err := money.Parse(text)
	if err != nil {
		return decimal.Zero, &kindError{kind: checkout.ErrInvalidAmount, detail: err.Error()}
	}
	return d, nil
}

// Responses.

type productResponse struct {
	ID         string                     `json:"id"`
	Name       string                     `json:"name"`
	Barcode    string                     `json:"barcode,omitempty"`
	Category   string                     `json:"category,omitempty"`
	Price      string                     `json:"price"`
	Stock      int                        `json:"stock"`
	StockLevel catalog.StockLevel         `json:"stockLevel"`
	Extra      map[string]json.RawMessage `json:"extra,omitempty"`
}

type catalogResponse struct {
	Products  []productResponse `json:"products"`
	Count     int               `json:"count"`
	FetchedAt *time.Time        `json:"fetchedAt,omitempty"`
}

type lineResponse struct {
	ID           string `json:"id"`
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	UnitPrice    string `json:"unitPrice"`
	Quantity     int    `json:"quantity"`
	StockCeiling int    `json:"stockCeiling"`
	Subtotal     string `json:"subtotal"`
}

type paymentResponse struct {
	Status         string  `json:"status"`
	AmountTendered string  `json:"amountTendered"`
	ChangeDue      *string `json:"changeDue,omitempty"`
}

type sessionResponse struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"createdAt"`
	CustomerID string          `json:"customerId,omitempty"`
	Lines      []lineResponse  `json:"lines"`
	ItemCount  int             `json:"itemCount"`
	Total      string          `json:"total"`
	Payment    paymentResponse `json:"payment"`
}

type saleItemResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type saleResponse struct {
	InvoiceID  string             `json:"invoiceId,omitempty"`
	IssuedAt   *time.Time         `json:"issuedAt,omitempty"`
	CustomerID string             `json:"customerId"`
	Items      []saleItemResponse `json:"items"`
	Total      string             `json:"total"`
	Tendered   string             `json:"tendered"`
	ChangeDue  string             `json:"changeDue"`
	Receipt    json.RawMessage    `json:"receipt,omitempty"`
}

func toProductResponse(p catalog.Product) productResponse {
	resp := productResponse{
		ID:         p.ID,
		Name:       p.Name,
		Barcode:    p.Barcode,
		Category:   p.Category,
		Price:      money.Format(p.Price),
		Stock:      p.Stock,
		StockLevel: p.StockLevel(),
	}
	if len(p.Extra) > 0 {
		resp.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			resp.Extra[k] = json.RawMessage(v)
		}
	}
	return resp
}

func toCatalogResponse(snap *catalog.Snapshot, products []catalog.Product) catalogResponse {
	resp := catalogResponse{
		Products: make([]productResponse, len(products)),
		Count:    len(products),
	}
	for i, p := range products {
		resp.Products[i] = toProductResponse(p)
	}
	if t := snap.FetchedAt(); !t.IsZero() {
		resp.FetchedAt = &t
	}
	return resp
}

func toLineResponse(l cart.Line) lineResponse {
	return lineResponse{
		ID:           l.ID,
		ProductID:    l.ProductID,
		ProductName:  l.ProductName,
		UnitPrice:    money.Format(l.UnitPrice),
		Quantity:     l.Quantity,
		StockCeiling: l.StockCeiling,
		Subtotal:     money.Format(l.Subtotal()),
	}
}

func toSessionResponse(sess *session.Session) sessionResponse {
	v := sess.Coordinator.View()

	lines := v.Cart.Lines()
	resp := sessionResponse{
		ID:         sess.ID,
		CreatedAt:  sess.CreatedAt,
		CustomerID: v.Cart.CustomerID(),
		Lines:      make([]lineResponse, len(lines)),
		ItemCount:  v.Cart.ItemCount(),
		Total:      money.Format(v.Total),
		Payment: paymentResponse{
			Status:         v.Payment.Status.String(),
			AmountTendered: money.Format(v.Payment.AmountTendered),
		},
	}
	for i, l := range lines {
		resp.Lines[i] = toLineResponse(l)
	}
	if v.Payment.Status == checkout.StatusAwaitingAmount {
		change := money.Format(v.ChangeDue)
		resp.Payment.ChangeDue = &change
	}
	return resp
}

func toSaleResponse(res *checkout.SaleResult) saleResponse {
	resp := saleResponse{
		InvoiceID:  res.Receipt.InvoiceID,
		CustomerID: res.Order.CustomerID,
		Items:      make([]saleItemResponse, len(res.Order.Items)),
		Total:      money.Format(res.Total),
		Tendered:   money.Format(res.Tendered),
		ChangeDue:  money.Format(res.ChangeDue),
	}
	for i, item := range res.Order.Items {
		resp.Items[i] = saleItemResponse{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if !res.Receipt.IssuedAt.IsZero() {
		t := res.Receipt.IssuedAt
		resp.IssuedAt = &t
	}
	if json.Valid(res.Receipt.Raw) {
		resp.Receipt = json.RawMessage(res.Receipt.Raw)
	}
	return resp
}
