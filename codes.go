package authgate

import (
	"net/http"
	"strings"
)

// Code identifies a validation failure in a stable, client-visible form.
//
// Code values are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Code string

const (
	// CodeMissingHeader is an exported constant or variable used by the gateway engine.
	CodeMissingHeader Code = "MissingHeader"
	// CodeMissingBearer is an exported constant or variable used by the gateway engine.
	CodeMissingBearer Code = "MissingBearer"
	// CodeInvalidIdentityToken is an exported constant or variable used by the gateway engine.
	CodeInvalidIdentityToken Code = "InvalidIdentityToken"
	// CodeDeviceExists is an exported constant or variable used by the gateway engine.
	CodeDeviceExists Code = "DeviceExists"
	// CodePhoneNumberNotVerified is an exported constant or variable used by the gateway engine.
	CodePhoneNumberNotVerified Code = "PhoneNumberNotVerified"
	// CodeMissingParameter is an exported constant or variable used by the gateway engine.
	CodeMissingParameter Code = "MissingParameter"
	// CodeInvalidAccessToken is an exported constant or variable used by the gateway engine.
	CodeInvalidAccessToken Code = "InvalidAccessToken"
)

// MissingParameterCode builds the parameterized MissingParameter code,
// carrying the offending field name for client display.
func MissingParameterCode(field string) Code {
	return Code(string(CodeMissingParameter) + ":" + field)
}

// Base strips a parameter suffix, returning the bare code used for status
// mapping. MissingParameter:phoneNumber -> MissingParameter.
func (c Code) Base() Code {
	if i := strings.IndexByte(string(c), ':'); i >= 0 {
		return Code(c[:i])
	}
	return c
}

// Status maps a failure code to its HTTP status. The mapping is a stable
// contract shared with clients; unrecognized codes map to 400.
func (c Code) Status() int {
	switch c.Base() {
	case CodeMissingHeader, CodeMissingBearer:
		return http.StatusForbidden
	case CodeInvalidIdentityToken:
		return http.StatusBadRequest
	case CodeDeviceExists:
		return http.StatusUnauthorized
	case CodePhoneNumberNotVerified:
		return http.StatusConflict
	case CodeMissingParameter:
		return http.StatusPreconditionFailed
	case CodeInvalidAccessToken:
		return http.StatusExpectationFailed
	default:
		return http.StatusBadRequest
	}
}
