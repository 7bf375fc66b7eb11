package validation

// Delivery is everything the fulfilment pipeline needs before contacting the mailer.
type Delivery struct {
	OrderCode   string `validate:"required"`
	Email       string `validate:"required,email"`
	ProductName string `validate:"required"`
	ObjectName  string `validate:"required"`
}
