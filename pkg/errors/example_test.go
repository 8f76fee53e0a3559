// Package errors provides examples of structured error handling in beanpool.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/beanpool/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeNoInstanceAvailable, "no instances available in pool").
		WithDetail("deployment", "OrderProcessor").
		WithDetail("waited", "30s")

	fmt.Println(err.Error())

	// Output:
	// no_instance_available: no instances available in pool
}

// ExampleWrap shows how a construction failure surfaces as a system error.
func ExampleWrap() {
	cause := io.ErrUnexpectedEOF

	construction := errors.Wrap(cause, errors.ErrorTypeConstruction, "bean constructor failed")
	err := errors.Wrap(construction, errors.ErrorTypeSystem, "cannot obtain a free instance")

	fmt.Println(err)
	fmt.Println(errors.IsType(err, errors.ErrorTypeConstruction))

	// Output:
	// system: cannot obtain a free instance: construction: bean constructor failed: unexpected EOF
	// true
}

// ExampleIsRetryable shows that pool exhaustion is retryable and construction is not.
func ExampleIsRetryable() {
	exhausted := errors.New(errors.ErrorTypeNoInstanceAvailable, "pool exhausted")
	broken := errors.New(errors.ErrorTypeConstruction, "constructor panicked")

	fmt.Println(errors.IsRetryable(exhausted))
	fmt.Println(errors.IsRetryable(broken))

	// Output:
	// true
	// false
}

// ExampleTypeOf demonstrates mapping an error to its category.
func ExampleTypeOf() {
	fmt.Println(errors.TypeOf(errors.New(errors.ErrorTypeClosed, "pool closed")))
	fmt.Println(errors.TypeOf(io.EOF))

	// Output:
	// closed
	// internal
}
