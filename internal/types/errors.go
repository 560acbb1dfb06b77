package types

import "errors"

var (
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrNotInitialized     = errors.New("kite session not initialized")
	ErrNotConfigured      = errors.New("api key not configured")
	ErrMissingParameters  = errors.New("missing parameters")
	ErrInvalidBody        = errors.New("invalid request body")
	ErrMissingToken       = errors.New("no request_token found in callback")
	ErrLoginNotSuccessful = errors.New("login was not successful")
	ErrAuthExchangeFailed = errors.New("authentication failed")
	ErrInvalidDate        = errors.New("invalid date")
	ErrTransportFailure   = errors.New("transport failure")
)

// BrokerError is returned when Kite rejects or fails an operation. Its message
// is the broker's own message, unmodified.
type BrokerError struct {
	Op  string
	Err error
}

func (e *BrokerError) Error() string {
	return e.Err.Error()
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError wraps err as a broker failure of op. A nil err stays nil.
func NewBrokerError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BrokerError{Op: op, Err: err}
}

// IsBrokerError reports whether err came from the broker.
func IsBrokerError(err error) bool {
	var be *BrokerError
	return errors.As(err, &be)
}
