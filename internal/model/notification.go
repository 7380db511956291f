package model

// Dispatch is one (recipient, subject, body) tuple handed to the dispatcher.
// It is a value type and is never mutated after the router builds it.
type Dispatch struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}
