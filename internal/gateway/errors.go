package gateway

import "fmt"

// GatewayError covers a disabled/misconfigured gateway, an HTTP failure, or
// a provider-reported error. Message carries the provider's own error text
// when one was returned.
type GatewayError struct {
	Gateway string
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s gateway: %s: %v", e.Gateway, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s gateway: %s", e.Gateway, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

func NewGatewayError(gatewayName, message string, cause error) *GatewayError {
	return &GatewayError{Gateway: gatewayName, Message: message, Cause: cause}
}

// UnsupportedGatewayError names a gateway nothing in the adapter set serves.
type UnsupportedGatewayError struct {
	Gateway string
}

func (e *UnsupportedGatewayError) Error() string {
	return fmt.Sprintf("unsupported payment gateway: %s", e.Gateway)
}

// SignatureError rejects a webhook whose provider signature does not
// verify. State must never be mutated after this error.
type SignatureError struct {
	Gateway string
	OrderID string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s webhook signature mismatch for order %s", e.Gateway, e.OrderID)
}

// AmountMismatchError rejects a webhook whose amount disagrees with the
// stored payment. State must never be mutated after this error.
type AmountMismatchError struct {
	OrderID  string
	Expected int64
	Got      int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("webhook amount mismatch for order %s: expected %d, got %d", e.OrderID, e.Expected, e.Got)
}
