package clean

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn marks a transform whose input column is absent. The
	// pipeline logs it and continues with the table unchanged.
	ErrMissingColumn = errors.New("missing column")
	// ErrMissingMapping marks a transform whose ID mapping section is empty.
	ErrMissingMapping = errors.New("missing mapping section")
	// ErrUnknownVariant is returned by NewPipeline for names outside Variants.
	ErrUnknownVariant = errors.New("unknown variant")
)

// DomainError reports a value outside an encoding's declared domain.
type DomainError struct {
	Column string
	Row    int // 0-based row in the table handed to the transform
	Value  string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("column %s row %d: value %q outside encoding domain", e.Column, e.Row, e.Value)
}

func missingColumn(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingColumn, name)
}

// skippable reports whether err only means a step had nothing to act on.
func skippable(err error) bool {
	return errors.Is(err, ErrMissingColumn) || errors.Is(err, ErrMissingMapping)
}
