package datasource

import "errors"

var (
	// ErrNotFound means the dataset does not exist in the source.
	ErrNotFound = errors.New("dataset not found")
	// ErrMalformed means the dataset payload could not be decoded.
	ErrMalformed = errors.New("malformed dataset")
	// ErrUnknownField means a requested column is not in the dataset.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownParameter is returned for ids outside the catalog.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrInvalidRange means a query range is empty or reversed.
	ErrInvalidRange = errors.New("invalid time range")
)
