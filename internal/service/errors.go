package service

import "errors"

// Validation failures: recoverable, reported to the caller, no state
// change. Handlers map these to 4xx responses.
var (
	ErrMissingField  = errors.New("required field missing")
	ErrInvalidVin    = errors.New("invalid VIN")
	ErrDuplicateVin  = errors.New("a vehicle with this VIN already exists")
	ErrInvalidStatus = errors.New("invalid status")
	ErrNotFound      = errors.New("vehicle not found")
	ErrAlreadySold   = errors.New("vehicle is already sold")
	ErrInvalidAmount = errors.New("invalid amount")
)
