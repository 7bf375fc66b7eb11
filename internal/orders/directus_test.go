package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

func newDirectus(t *testing.T, h http.HandlerFunc) *DirectusStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewDirectusStore(srv.Client(), DirectusConfig{
		BaseURL:              srv.URL + "/",
		OrdersRoute:          "/items/orders",
		ProductsRoute:        "/items/products",
		TransactionLogsRoute: "/items/transaction_logs",
		Token:                "tok",
	})
}

func TestDirectusList_PendingFilter(t *testing.T) {
	store := newDirectus(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items/orders", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("filter[status][_eq]"))
		assert.Equal(t, "1", q.Get("filter[transaction_status][_eq]"))
		assert.Equal(t, "-1", q.Get("limit"))
		assert.Empty(t, q.Get("fields"))
		_, _ = io.WriteString(w, `{"data":[{"id":12,"code":"ORD1","status":1,"transaction_status":1,
			"date_created":"2024-10-30T05:24:02.000Z","email":"a@b.c","firstname":"Jean","lastname":"Kouassi","tunnel":4}]}`)
	})

	got, err := store.List(context.Background(), Filter{
		Status:            StatusPtr(StatusStarted),
		TransactionStatus: TransactionPtr(TransactionPending),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	o := got[0]
	assert.Equal(t, "12", o.ID)
	assert.Equal(t, "ORD1", o.Code)
	assert.Equal(t, StatusStarted, o.Status)
	assert.Equal(t, TransactionPending, o.TransactionStatus)
	assert.Equal(t, time.Date(2024, 10, 30, 5, 24, 2, 0, time.UTC), o.DateCreated)
	assert.Empty(t, o.ProductID, "unexpanded tunnel carries no product")
	assert.Equal(t, "Kouassi Jean", o.CustomerName())
}

func TestDirectusList_UndeliveredExpandsTunnel(t *testing.T) {
	store := newDirectus(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("filter[transaction_status][_eq]"))
		assert.Equal(t, "false", q.Get("filter[product_is_delivered][_eq]"))
		assert.Equal(t, "*,tunnel.*", q.Get("fields"))
		_, _ = io.WriteString(w, `{"data":[{"id":"9f1c","code":"ORD2","status":"2","transaction_status":"2",
			"product_is_delivered":false,"tunnel":{"id":3,"product":17}}]}`)
	})

	got, err := store.List(context.Background(), Filter{
		TransactionStatus:  TransactionPtr(TransactionAccepted),
		ProductIsDelivered: BoolPtr(false),
		ExpandProduct:      true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "9f1c", got[0].ID)
	assert.Equal(t, StatusCompleted, got[0].Status)
	assert.Equal(t, "17", got[0].ProductID)
}

func TestDirectusList_CreatedBeforeIsUTC(t *testing.T) {
	store := newDirectus(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-10-29T04:00:00", r.URL.Query().Get("filter[date_created][_lt]"))
		w.WriteHeader(http.StatusNoContent)
	})

	loc := time.FixedZone("UTC+1", 3600)
	cutoff := time.Date(2024, 10, 29, 5, 0, 0, 0, loc)
	got, err := store.List(context.Background(), Filter{Status: StatusPtr(StatusStarted), CreatedBefore: &cutoff})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDirectusList_RemoteFailure(t *testing.T) {
	store := newDirectus(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"errors":[{"message":"Invalid user credentials."}]}`)
	})

	_, err := store.List(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, remote.IsStatus(err, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "Invalid user credentials.")
}

func TestDirectusGetProduct(t *testing.T) {
	store := newDirectus(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/items/products/17":
			_, _ = io.WriteString(w, `{"data":{"id":17,"name":"101 Astuces","code":"P17","minio_object_name":"file123.pdf"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	p, err := store.GetProduct(context.Background(), "17")
	require.NoError(t, err)
	assert.Equal(t, Product{ID: "17", Name: "101 Astuces", Code: "P17", ObjectName: "file123.pdf"}, *p)

	_, err = store.GetProduct(context.Background(), "99")
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrNotFound))
	assert.True(t, remote.IsKind(err, remote.Data))

	_, err = store.GetProduct(context.Background(), "")
	assert.True(t, errors.Is(err, remote.ErrNotFound))
}

func TestDirectusUpdateOrder(t *testing.T) {
	var body map[string]interface{}
	store := newDirectus(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/items/orders/12", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"data":{"id":12,"code":"ORD1","status":2,"transaction_status":2}}`)
	})

	o, err := store.UpdateOrder(context.Background(), "12", Patch{
		Status:            StatusPtr(StatusCompleted),
		TransactionStatus: TransactionPtr(TransactionAccepted),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.Equal(t, TransactionAccepted, o.TransactionStatus)
	assert.Equal(t, map[string]interface{}{"status": float64(2), "transaction_status": float64(2)}, body)
}

func TestDirectusUpdateOrder_DeliveryFields(t *testing.T) {
	var body map[string]interface{}
	store := newDirectus(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	})

	at := time.Date(2024, 10, 31, 6, 37, 18, 0, time.UTC)
	o, err := store.UpdateOrder(context.Background(), "12", Patch{ProductIsDelivered: BoolPtr(true), DateDelivered: &at})
	require.NoError(t, err)
	assert.True(t, o.ProductIsDelivered)
	assert.Equal(t, true, body["product_is_delivered"])
	assert.Equal(t, "2024-10-31 06:37:18", body["date_delivered"])
	assert.NotContains(t, body, "status")
}

func TestDirectusCreateTransactionLog(t *testing.T) {
	var body map[string]interface{}
	store := newDirectus(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/items/transaction_logs", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	})

	err := store.CreateTransactionLog(context.Background(), TransactionLog{OrderID: "12", Status: TransactionRefused})
	require.NoError(t, err)
	assert.Equal(t, "12", body["order"])
	assert.Equal(t, float64(3), body["status"])
}

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
		D flexString `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":5,"b":"x","c":{"id":7},"d":null}`), &v))
	assert.Equal(t, flexString("5"), v.A)
	assert.Equal(t, flexString("x"), v.B)
	assert.Equal(t, flexString("7"), v.C)
	assert.Equal(t, flexString(""), v.D)
}
