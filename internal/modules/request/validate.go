// README: Transport-independent payload validation with field-level detail.
package request

import (
	"net/mail"
	"sort"
	"strings"
)

// ValidationError carries per-field reasons so callers can surface them
// without parsing message strings.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("invalid request")
	for _, k := range keys {
		b.WriteString("; ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(e.Fields[k])
	}
	return b.String()
}

// Validate checks the whole aggregate. The transport layer does its own
// binding checks, but the core enforces the same rules so guarantees do
// not depend on which transport called it.
func (r *Request) Validate() error {
	fields := map[string]string{}

	if strings.TrimSpace(r.RecipientName) == "" {
		fields["recipient_name"] = "required"
	}
	if _, err := mail.ParseAddress(r.RecipientEmail); err != nil {
		fields["recipient_email"] = "must be a well-formed email address"
	}
	if strings.TrimSpace(r.RecipientPhone) == "" {
		fields["recipient_phone"] = "required"
	}
	if !r.CargoType.Valid() {
		fields["cargo_type"] = "unknown cargo type"
	}
	if !r.Weight.IsPositive() {
		fields["weight"] = "must be greater than zero"
	}
	if strings.TrimSpace(r.Dimensions) == "" {
		fields["dimensions"] = "required"
	}
	if r.Quantity < 1 {
		fields["quantity"] = "must be at least 1"
	}
	if strings.TrimSpace(r.PickupLocation) == "" {
		fields["pickup_location"] = "required"
	}
	if strings.TrimSpace(r.DeliveryLocation) == "" {
		fields["delivery_location"] = "required"
	}
	if r.PickupAt.IsZero() {
		fields["pickup_date_time"] = "required"
	}
	if r.DeliveryAt.IsZero() {
		fields["delivery_date_time"] = "required"
	}
	if !r.PickupAt.IsZero() && !r.DeliveryAt.IsZero() && r.DeliveryAt.Before(r.PickupAt) {
		fields["delivery_date_time"] = "must not precede pickup_date_time"
	}
	if !r.Priority.Valid() {
		fields["priority"] = "must be medium or high"
	}
	if r.BasePrice != nil && r.BasePrice.IsNegative() {
		fields["base_price"] = "must not be negative"
	}
	if r.CommissionRate != nil && r.CommissionRate.IsNegative() {
		fields["commission_rate"] = "must not be negative"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
