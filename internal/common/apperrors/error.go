// Package apperrors provides the application error type used across the
// service. Errors form chains: a sentinel declared at package init acts as a
// template, and call sites derive request-specific errors from it while
// keeping errors.Is compatibility with the sentinel. Each error carries an
// HTTP status code so transport layers can map errors without switching on
// error strings.
package apperrors

// Error is the interface implemented by all application errors. It extends
// the standard error interface with derivation and status code handling.
type Error interface {
	error
	Unwrap() error // supports errors.Is / errors.As

	New(msg string) Error                  // derive a fresh error using this one as template
	Msg(msg string) Error                  // derive an error with a new message, wrapping this one
	MsgErr(msg string, err ...error) Error // derive with message and extra wrapped causes
	Err(err ...error) Error                // attach causes, keeping the current message
	SetStatusCode(int) Error               // set the HTTP status code
	StatusCode() int                       // current HTTP status code
	ErrorAll() string                      // message including wrapped causes
	UnwrapAll() []error                    // all wrapped causes
}
