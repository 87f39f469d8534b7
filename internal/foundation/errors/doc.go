// Package errors provides the classified error type used across releasekeeper.
//
// A ClassifiedError carries a category, a severity, a retry strategy and
// structured context. Errors are built with the fluent ErrorBuilder:
//
//	err := errors.StoreError("failed to save release history").
//		WithCause(ioErr).
//		WithContext("app", key).
//		Build()
//
// The CLIErrorAdapter turns classified errors into log records and process
// exit codes.
package errors
