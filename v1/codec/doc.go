// Package codec turns raw broker message bodies into typed messages and back.
//
// Two wire formats are supported. The JSON format is a plain object:
//
//	{"id": 1, "qty": 2}
//
// The positional format is the envelope written by older producers, a three
// element array holding positional arguments, keyword arguments and an unused map:
//
//	[[1], {"qty": 2}, {}]
//
// Positional arguments are matched to the JSON fields of the message struct in
// declaration order.
//
// Decode never panics. Anything it cannot turn into a valid message is reported
// as an error wrapping ErrMalformedMessage, which workers count and drop.
// Struct messages are checked against their validate tags
// (github.com/go-playground/validator), so a JSON object that lacks a required
// field is malformed too. Message types may also implement Validator for
// checks the tags cannot express:
//
//	type Order struct {
//		ID  int    `json:"id" validate:"required"`
//		SKU string `json:"sku" validate:"required"`
//		Qty int    `json:"qty"`
//	}
//
//	func (o Order) Validate() error {
//		if o.Qty < 0 {
//			return errors.New("qty must not be negative")
//		}
//		return nil
//	}
//
//	orders := codec.NewJSON[Order]()
//	order, err := orders.Decode(body)
package codec
