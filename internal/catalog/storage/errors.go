package storage

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrDuplicate is returned by Insert when product_id is already stored.
var ErrDuplicate = errors.New("product already stored")

// ErrNotStored is returned by Update when no row carries the product_id.
var ErrNotStored = errors.New("product not stored")

type StoreError struct {
	ProductID string
	Op        string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.ProductID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, productID string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{ProductID: productID, Op: op, Err: err}
}

const uniqueViolation = pq.ErrorCode("23505")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
