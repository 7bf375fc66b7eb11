package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

const serviceDirectus = "directus"

// Directus stores both status axes as integer codes.
var (
	orderStatusCodes = map[OrderStatus]int{
		StatusStarted:   1,
		StatusCompleted: 2,
		StatusFailed:    3,
		StatusAbandoned: 4,
	}
	transactionStatusCodes = map[TransactionStatus]int{
		TransactionPending:  1,
		TransactionAccepted: 2,
		TransactionRefused:  3,
	}
)

const (
	directusFilterLayout    = "2006-01-02T15:04:05"
	directusDeliveredLayout = "2006-01-02 15:04:05"
)

// DirectusConfig locates the order, product and transaction-log collections.
type DirectusConfig struct {
	BaseURL              string
	OrdersRoute          string
	ProductsRoute        string
	TransactionLogsRoute string
	Token                string // optional static bearer token
}

// DirectusStore implements Store over the Directus items REST API.
type DirectusStore struct {
	client remote.Doer
	cfg    DirectusConfig
}

// NewDirectusStore returns a Directus-backed Store.
func NewDirectusStore(client remote.Doer, cfg DirectusConfig) *DirectusStore {
	return &DirectusStore{client: client, cfg: cfg}
}

// List fetches every order matching f. limit=-1 disables Directus' default page size.
func (s *DirectusStore) List(ctx context.Context, f Filter) ([]Order, error) {
	q := url.Values{}
	if f.Status != nil {
		q.Set("filter[status][_eq]", strconv.Itoa(orderStatusCodes[*f.Status]))
	}
	if f.TransactionStatus != nil {
		q.Set("filter[transaction_status][_eq]", strconv.Itoa(transactionStatusCodes[*f.TransactionStatus]))
	}
	if f.ProductIsDelivered != nil {
		q.Set("filter[product_is_delivered][_eq]", strconv.FormatBool(*f.ProductIsDelivered))
	}
	if f.CreatedBefore != nil {
		q.Set("filter[date_created][_lt]", f.CreatedBefore.UTC().Format(directusFilterLayout))
	}
	if f.ExpandProduct {
		q.Set("fields", "*,tunnel.*")
	}
	q.Set("limit", "-1")

	var out struct {
		Data []directusOrder `json:"data"`
	}
	err := remote.Call(ctx, s.client, remote.Request{
		Service: serviceDirectus,
		Op:      "list_orders",
		Method:  http.MethodGet,
		URL:     s.url(s.cfg.OrdersRoute) + "?" + q.Encode(),
		Header:  s.header(),
		OK:      []int{http.StatusOK, http.StatusCreated, http.StatusNoContent},
	}, &out)
	if err != nil {
		return nil, err
	}

	result := make([]Order, 0, len(out.Data))
	for _, d := range out.Data {
		result = append(result, d.toOrder())
	}
	return result, nil
}

// GetProduct fetches one product by id.
func (s *DirectusStore) GetProduct(ctx context.Context, productID string) (*Product, error) {
	const op = "get_product"
	if productID == "" {
		return nil, remote.DataError(serviceDirectus, op, "order has no linked product", remote.ErrNotFound)
	}

	var out struct {
		Data *directusProduct `json:"data"`
	}
	err := remote.Call(ctx, s.client, remote.Request{
		Service: serviceDirectus,
		Op:      op,
		Method:  http.MethodGet,
		URL:     s.url(s.cfg.ProductsRoute) + "/" + url.PathEscape(productID),
		Header:  s.header(),
	}, &out)
	if remote.IsStatus(err, http.StatusNotFound) {
		return nil, remote.DataError(serviceDirectus, op, "product "+productID, remote.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, remote.DataError(serviceDirectus, op, "product "+productID, remote.ErrNotFound)
	}
	return &Product{
		ID:         string(out.Data.ID),
		Name:       out.Data.Name,
		Code:       out.Data.Code,
		ObjectName: out.Data.ObjectName,
	}, nil
}

// UpdateOrder PATCHes the given fields and returns the stored order.
func (s *DirectusStore) UpdateOrder(ctx context.Context, orderID string, p Patch) (*Order, error) {
	body := map[string]interface{}{}
	if p.Status != nil {
		body["status"] = orderStatusCodes[*p.Status]
	}
	if p.TransactionStatus != nil {
		body["transaction_status"] = transactionStatusCodes[*p.TransactionStatus]
	}
	if p.ProductIsDelivered != nil {
		body["product_is_delivered"] = *p.ProductIsDelivered
	}
	if p.DateDelivered != nil {
		body["date_delivered"] = p.DateDelivered.UTC().Format(directusDeliveredLayout)
	}

	var out struct {
		Data *directusOrder `json:"data"`
	}
	err := remote.Call(ctx, s.client, remote.Request{
		Service: serviceDirectus,
		Op:      "update_order",
		Method:  http.MethodPatch,
		URL:     s.url(s.cfg.OrdersRoute) + "/" + url.PathEscape(orderID),
		Header:  s.header(),
		Body:    body,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Data == nil {
		o := p.Apply(Order{ID: orderID})
		return &o, nil
	}
	o := out.Data.toOrder()
	return &o, nil
}

// CreateTransactionLog appends an audit entry.
func (s *DirectusStore) CreateTransactionLog(ctx context.Context, entry TransactionLog) error {
	return remote.Call(ctx, s.client, remote.Request{
		Service: serviceDirectus,
		Op:      "create_transaction_log",
		Method:  http.MethodPost,
		URL:     s.url(s.cfg.TransactionLogsRoute),
		Header:  s.header(),
		Body: map[string]interface{}{
			"order":  entry.OrderID,
			"status": transactionStatusCodes[entry.Status],
		},
	}, nil)
}

func (s *DirectusStore) url(route string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + route
}

func (s *DirectusStore) header() http.Header {
	h := http.Header{}
	if s.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	return h
}

type directusOrder struct {
	ID                 flexString      `json:"id"`
	Code               string          `json:"code"`
	Status             flexString      `json:"status"`
	TransactionStatus  flexString      `json:"transaction_status"`
	ProductIsDelivered bool            `json:"product_is_delivered"`
	DateDelivered      *string         `json:"date_delivered"`
	DateCreated        string          `json:"date_created"`
	Email              string          `json:"email"`
	Firstname          string          `json:"firstname"`
	Lastname           string          `json:"lastname"`
	Tunnel             json.RawMessage `json:"tunnel"`
}

func (d directusOrder) toOrder() Order {
	o := Order{
		ID:                 string(d.ID),
		Code:               d.Code,
		Status:             orderStatusFromCode(string(d.Status)),
		TransactionStatus:  transactionStatusFromCode(string(d.TransactionStatus)),
		ProductIsDelivered: d.ProductIsDelivered,
		Email:              d.Email,
		Firstname:          d.Firstname,
		Lastname:           d.Lastname,
	}
	if t, ok := parseDirectusTime(d.DateCreated); ok {
		o.DateCreated = t
	}
	if d.DateDelivered != nil {
		if t, ok := parseDirectusTime(*d.DateDelivered); ok {
			o.DateDelivered = &t
		}
	}
	// tunnel is a bare id unless expanded with fields=tunnel.*
	if t := bytes.TrimSpace(d.Tunnel); len(t) > 0 && t[0] == '{' {
		var tunnel struct {
			Product flexString `json:"product"`
		}
		if err := json.Unmarshal(t, &tunnel); err == nil {
			o.ProductID = string(tunnel.Product)
		}
	}
	return o
}

type directusProduct struct {
	ID         flexString `json:"id"`
	Name       string     `json:"name"`
	Code       string     `json:"code"`
	ObjectName string     `json:"minio_object_name"`
}

func orderStatusFromCode(code string) OrderStatus {
	for s, c := range orderStatusCodes {
		if strconv.Itoa(c) == code {
			return s
		}
	}
	return OrderStatus(fmt.Sprintf("UNKNOWN(%s)", code))
}

func transactionStatusFromCode(code string) TransactionStatus {
	for s, c := range transactionStatusCodes {
		if strconv.Itoa(c) == code {
			return s
		}
	}
	return TransactionStatus(fmt.Sprintf("UNKNOWN(%s)", code))
}

// Directus timestamps are UTC; datetime fields come without a zone.
var directusTimeLayouts = []string{time.RFC3339Nano, directusFilterLayout, directusDeliveredLayout}

func parseDirectusTime(s string) (time.Time, bool) {
	for _, layout := range directusTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// flexString accepts ids and codes whether Directus sends them as strings, numbers or
// expanded relation objects.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case b[0] == '{':
		var rel struct {
			ID flexString `json:"id"`
		}
		if err := json.Unmarshal(b, &rel); err != nil {
			return err
		}
		*f = rel.ID
	default:
		*f = flexString(b)
	}
	return nil
}
