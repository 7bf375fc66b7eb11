package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/imrishuroy/orderflow-reconciler/internal/mailer"
	"github.com/imrishuroy/orderflow-reconciler/internal/orders"
	"github.com/imrishuroy/orderflow-reconciler/internal/payment"
	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

var testNow = time.Date(2024, 10, 30, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory orders.Store with the same filter semantics as the real backends.
type fakeStore struct {
	mu       sync.Mutex
	orders   map[string]orders.Order
	products map[string]orders.Product
	logs     []orders.TransactionLog
	patches  []orders.Patch

	listErr   func(f orders.Filter) error
	updateErr func(id string, p orders.Patch) error
	logErr    error
}

func newFakeStore(seed ...orders.Order) *fakeStore {
	s := &fakeStore{orders: map[string]orders.Order{}, products: map[string]orders.Product{}}
	for _, o := range seed {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) List(_ context.Context, f orders.Filter) ([]orders.Order, error) {
	if s.listErr != nil {
		if err := s.listErr(f); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.TransactionStatus != nil && o.TransactionStatus != *f.TransactionStatus {
			continue
		}
		if f.ProductIsDelivered != nil && o.ProductIsDelivered != *f.ProductIsDelivered {
			continue
		}
		if f.CreatedBefore != nil && !o.DateCreated.Before(*f.CreatedBefore) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetProduct(_ context.Context, id string) (*orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, remote.DataError("store", "get product", "product "+id, remote.ErrNotFound)
	}
	return &p, nil
}

func (s *fakeStore) UpdateOrder(_ context.Context, id string, p orders.Patch) (*orders.Order, error) {
	if s.updateErr != nil {
		if err := s.updateErr(id, p); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, remote.DataError("store", "update order", "order "+id, remote.ErrNotFound)
	}
	o = p.Apply(o)
	s.orders[id] = o
	s.patches = append(s.patches, p)
	return &o, nil
}

func (s *fakeStore) CreateTransactionLog(_ context.Context, e orders.TransactionLog) error {
	if s.logErr != nil {
		return s.logErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	return nil
}

func (s *fakeStore) order(id string) orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *fakeStore) patchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patches)
}

type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]string
	errs     map[string]error
	calls    map[string]int
	delay    time.Duration

	inFlight, maxInFlight int
}

func newFakeGateway(statuses map[string]string) *fakeGateway {
	return &fakeGateway{statuses: statuses, errs: map[string]error{}, calls: map[string]int{}}
}

func (g *fakeGateway) CheckTransaction(_ context.Context, code string) (*payment.Transaction, error) {
	g.mu.Lock()
	g.calls[code]++
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	err, status := g.errs[code], g.statuses[code]
	g.mu.Unlock()

	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &payment.Transaction{Code: "00", Status: status}, nil
}

type fakeMailer struct {
	mu          sync.Mutex
	existing    map[string]bool
	upsertErr   error
	sendErr     error
	subscribers []mailer.Subscriber
	sent        []mailer.TransactionalEmail
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{existing: map[string]bool{}}
}

func (m *fakeMailer) UpsertSubscriber(_ context.Context, s mailer.Subscriber) (mailer.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	if m.existing[s.Email] {
		return mailer.AlreadyExists, nil
	}
	m.existing[s.Email] = true
	m.subscribers = append(m.subscribers, s)
	return mailer.Created, nil
}

func (m *fakeMailer) SendTransactional(_ context.Context, e mailer.TransactionalEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, e)
	return nil
}

// fakeSigner records the object names it signed successfully.
type fakeSigner struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (s *fakeSigner) SignedURL(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.calls = append(s.calls, name)
	return "https://files.example.com/products/" + name + "?X-Amz-Signature=abc", nil
}

type recordingSink struct {
	mu      sync.Mutex
	err     error
	events  []Event
	reports []CycleReport
}

func (r *recordingSink) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) Record(_ context.Context, rep CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return r.err
}

type harness struct {
	store   *fakeStore
	gateway *fakeGateway
	mailer  *fakeMailer
	signer  *fakeSigner
	sink    *recordingSink
	hook    *test.Hook
	rec     *Reconciler
}

func newHarness(t *testing.T, store *fakeStore, opts Options) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{
		store:   store,
		gateway: newFakeGateway(map[string]string{}),
		mailer:  newFakeMailer(),
		signer:  &fakeSigner{},
		sink:    &recordingSink{},
		hook:    hook,
	}
	if opts.ListID == 0 {
		opts.ListID = 3
	}
	if opts.TemplateID == 0 {
		opts.TemplateID = 4
	}
	h.rec = New(Deps{
		Store:   store,
		Gateway: h.gateway,
		Mailer:  h.mailer,
		Signer:  h.signer,
		Events:  h.sink,
		Metrics: h.sink,
	}, opts, logger)
	h.rec.nowFunc = func() time.Time { return testNow }
	n := 0
	h.rec.newID = func() string {
		n++
		return fmt.Sprintf("cycle-%d", n)
	}
	return h
}

// messages returns the log messages written at level.
func (h *harness) messages(level logrus.Level) []string {
	var out []string
	for _, e := range h.hook.AllEntries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

func pendingOrder(id, code string) orders.Order {
	return orders.Order{
		ID:                id,
		Code:              code,
		Status:            orders.StatusStarted,
		TransactionStatus: orders.TransactionPending,
		DateCreated:       testNow.Add(-time.Hour),
		Email:             code + "@example.com",
		Firstname:         "Jean",
		Lastname:          "Kouassi",
	}
}

func acceptedOrder(id, code, productID string) orders.Order {
	o := pendingOrder(id, code)
	o.Status = orders.StatusCompleted
	o.TransactionStatus = orders.TransactionAccepted
	o.ProductID = productID
	o.DateCreated = time.Date(2024, 10, 30, 9, 15, 0, 0, time.UTC)
	return o
}
