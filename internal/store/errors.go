package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrUnknownPartition   = errors.New("unknown partition")
	ErrIncompatibleSchema = errors.New("incompatible store schema")
)

// StoreError reports a failed local persistence operation.
type StoreError struct {
	Op        string
	Partition Partition
	Err       error
}

func (e *StoreError) Error() string {
	if e.Partition == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Partition, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
