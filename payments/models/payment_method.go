package models

// PaymentMethod is an opaque handle to a stored payment instrument, e.g. a
// wallet entry labelled "personal" or "work".
type PaymentMethod struct {
	Token string `json:"token"`
	Label string `json:"label,omitempty"`
}
