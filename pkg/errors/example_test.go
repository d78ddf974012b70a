// Package errors provides examples of structured error handling in bioetl.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/bioetl/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeConfig, "source configuration is missing").
		WithDetail("entity", "document")

	fmt.Println(err.Error())

	// Output:
	// config: source configuration is missing
}

// ExampleWrap shows how a transport failure keeps its cause.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeTransport, "batch fetch failed").
		WithDetail("batch", 3)

	if errors.IsType(err, errors.ErrorTypeTransport) {
		fmt.Println("transport error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("caused by unexpected EOF")
	}

	// Output:
	// transport error
	// caused by unexpected EOF
}

// ExampleIsRetryable shows which errors the client retries.
func ExampleIsRetryable() {
	timeout := errors.New(errors.ErrorTypeTimeout, "request timed out")
	serverErr := errors.New(errors.ErrorTypeTransport, "status 503").Retryable()
	notFound := errors.New(errors.ErrorTypeTransport, "status 404")

	fmt.Println(errors.IsRetryable(timeout))
	fmt.Println(errors.IsRetryable(serverErr))
	fmt.Println(errors.IsRetryable(notFound))

	// Output:
	// true
	// true
	// false
}

// Example_nestedType shows that IsType looks through wrapping layers.
func Example_nestedType() {
	inner := errors.New(errors.ErrorTypeConfig, "duplicate sort column")
	outer := errors.Wrap(inner, errors.ErrorTypeValidation, "determinism config invalid")

	fmt.Println(errors.IsType(outer, errors.ErrorTypeConfig))
	fmt.Println(outer.Error())

	// Output:
	// true
	// validation: determinism config invalid: config: duplicate sort column
}
