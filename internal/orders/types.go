package orders

import "time"

// OrderStatus is the order lifecycle axis.
type OrderStatus string

// Order statuses. Everything but STARTED is terminal.
const (
	StatusStarted   OrderStatus = "STARTED"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusFailed    OrderStatus = "FAILED"
	StatusAbandoned OrderStatus = "ABANDONED"
)

// TransactionStatus is the payment lifecycle axis, independent of OrderStatus.
type TransactionStatus string

// Transaction statuses. PENDING moves once to ACCEPTED or REFUSED.
const (
	TransactionPending  TransactionStatus = "PENDING"
	TransactionAccepted TransactionStatus = "ACCEPTED"
	TransactionRefused  TransactionStatus = "REFUSED"
)

// Order represents a customer purchase as held by the order store.
type Order struct {
	ID                 string            `dynamodbav:"order_id"` // PK
	Code               string            `dynamodbav:"code"`
	Status             OrderStatus       `dynamodbav:"status"`
	TransactionStatus  TransactionStatus `dynamodbav:"transaction_status"`
	ProductIsDelivered bool              `dynamodbav:"product_is_delivered"`
	DateDelivered      *time.Time        `dynamodbav:"date_delivered,omitempty"`
	DateCreated        time.Time         `dynamodbav:"date_created"`
	Email              string            `dynamodbav:"email"`
	Firstname          string            `dynamodbav:"firstname"`
	Lastname           string            `dynamodbav:"lastname"`
	ProductID          string            `dynamodbav:"product_id,omitempty"` // tunnel.product
}

// CustomerName is "lastname firstname", the way the storefront addresses customers.
func (o Order) CustomerName() string {
	switch {
	case o.Lastname == "":
		return o.Firstname
	case o.Firstname == "":
		return o.Lastname
	}
	return o.Lastname + " " + o.Firstname
}

// Product is the digital good delivered for an order. Read-only here.
type Product struct {
	ID         string `dynamodbav:"product_id"` // PK
	Name       string `dynamodbav:"name"`
	Code       string `dynamodbav:"code"`
	ObjectName string `dynamodbav:"minio_object_name"`
}

// TransactionLog is an append-only audit record of a transaction status change.
type TransactionLog struct {
	LogID     string            `dynamodbav:"log_id"` // PK, dynamo backend only
	OrderID   string            `dynamodbav:"order"`
	Status    TransactionStatus `dynamodbav:"status"`
	CreatedAt time.Time         `dynamodbav:"created_at"`
}

// Filter selects orders. Nil fields do not constrain.
type Filter struct {
	Status             *OrderStatus
	TransactionStatus  *TransactionStatus
	ProductIsDelivered *bool
	CreatedBefore      *time.Time
	// ExpandProduct asks the store to resolve the tunnel so ProductID is populated.
	ExpandProduct bool
}

// Patch is a partial order update. Nil fields are left untouched.
type Patch struct {
	Status             *OrderStatus
	TransactionStatus  *TransactionStatus
	ProductIsDelivered *bool
	DateDelivered      *time.Time
}

// Empty reports whether the patch would change nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.TransactionStatus == nil && p.ProductIsDelivered == nil && p.DateDelivered == nil
}

// Apply returns o with p applied.
func (p Patch) Apply(o Order) Order {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.TransactionStatus != nil {
		o.TransactionStatus = *p.TransactionStatus
	}
	if p.ProductIsDelivered != nil {
		o.ProductIsDelivered = *p.ProductIsDelivered
	}
	if p.DateDelivered != nil {
		t := *p.DateDelivered
		o.DateDelivered = &t
	}
	return o
}
