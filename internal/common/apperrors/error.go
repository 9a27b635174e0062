// Package apperrors provides layered application errors that carry an HTTP
// status code and compose through wrapping. Errors derived from a common root
// compare with errors.Is across the whole chain, which lets callers test for
// a family of failures (any schema error) or a specific one (rename failed).
package apperrors

// Error is the interface implemented by all application errors. Methods that
// derive new errors return Error so call sites can chain them.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // fresh error using the current one as template
	Msg(msg string) Error                  // new error with msg, wrapping the current one
	MsgErr(msg string, err ...error) Error // new error with msg, wrapping current plus extras
	Err(err ...error) Error                // current message, with extra errors attached
	SetStatusCode(int) Error               // derives a copy with the given HTTP status
	StatusCode() int                       // HTTP status for this error
	SetExpandError(bool) Error             // controls whether ErrorAll expands wrapped errors
	ErrorAll() string                      // message including wrapped errors when expanded
	UnwrapAll() []error                    // every wrapped error, in order
}
