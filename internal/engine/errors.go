package engine

import "github.com/soletrade/marketplace/internal/models"

// Kind classifies engine failures for the API layer. Validation failures are
// raised before any store mutation; everything else aborts the enclosing
// transaction.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindConflict
	KindInternal
)

// Error carries a stable machine-readable code alongside its kind. Codes are
// the flat message strings the surrounding services already consume.
type Error struct {
	Kind Kind
	Code string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Code + ": " + e.err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.err }

var (
	// ErrMissingField: a required submission field is absent.
	ErrMissingField = &Error{Kind: KindValidation, Code: "KEY_ERROR"}
	// ErrInvalidValue: a field is present but malformed.
	ErrInvalidValue = &Error{Kind: KindValidation, Code: "INVALID_VALUE"}
	// ErrListingNotFound: the product+size combination does not exist.
	ErrListingNotFound = &Error{Kind: KindNotFound, Code: "PRODUCT_SIZE_DOES_NOT_EXIST"}
)

// noMatchingOrder reports that the book holds no current order on the given
// side for an immediate execution to take.
func noMatchingOrder(side models.Side) *Error {
	code := "ASK_DOES_NOT_EXIST"
	if side == models.SideBid {
		code = "BID_DOES_NOT_EXIST"
	}
	return &Error{Kind: KindNotFound, Code: code}
}

func conflictErr(err error) *Error {
	return &Error{Kind: KindConflict, Code: "ORDER_CONFLICT", err: err}
}

func internalErr(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", err: err}
}
