package modules

import "net/http"

// ModuleError carries an RPC failure with the HTTP status it should map to.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       string
}

const (
	codeInvalidParams = -32602
	codeServerError   = -32000
)

var errModuleOffline = &ModuleError{
	HTTPStatus: http.StatusServiceUnavailable,
	Code:       codeServerError,
	Message:    "module offline",
}
