package bridge

import (
	"errors"

	"github.com/bytedance/sonic"
)

// Error names understood by the JavaScript SDK.
const (
	ErrNameUnexpectedMessageFormat = "unexpectedMessageFormat"
	ErrNameInvalidPermissionType   = "invalidPermissionType"
	ErrNameInternal                = "internalError"
	ErrNamePermissionDenied        = "permissionDenied"
	ErrNamePermissionRestricted    = "permissionRestricted"
	ErrNamePermissionNotDetermined = "permissionNotDetermined"
	ErrNameCustomPermissionDenied  = "customPermissionDenied"
	ErrNameHostApp                 = "hostAppError"
	ErrNameScopesNotSupported      = "scopesNotSupported"
)

// EncodedError is the wire form of a bridge failure.
type EncodedError struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (e *EncodedError) Error() string {
	return e.Name + ": " + e.Description
}

// JSON returns the error as the JSON text passed to execErrorCallback.
func (e *EncodedError) JSON() string {
	data, err := sonic.Marshal(e)
	if err != nil {
		return `{"name":"internalError","description":"failed to encode error"}`
	}
	return string(data)
}

func newError(name, description string) *EncodedError {
	return &EncodedError{Name: name, Description: description}
}

func errUnexpectedFormat() *EncodedError {
	return newError(ErrNameUnexpectedMessageFormat, "Please check the message format that is sent to Javascript SDK.")
}

func errInvalidPermissionType() *EncodedError {
	return newError(ErrNameInvalidPermissionType, "Permission type that is requested is invalid")
}

func errInternal() *EncodedError {
	return newError(ErrNameInternal, "Host app failed to retrieve data")
}

func errDenied() *EncodedError {
	return newError(ErrNamePermissionDenied, "Denied")
}

func errRestricted() *EncodedError {
	return newError(ErrNamePermissionRestricted, "Restricted")
}

func errNotDetermined() *EncodedError {
	return newError(ErrNamePermissionNotDetermined, "NotDetermined")
}

func errCustomDenied() *EncodedError {
	return newError(ErrNameCustomPermissionDenied, "User denied the custom permission request")
}

func errScopesNotSupported() *EncodedError {
	return newError(ErrNameScopesNotSupported, "Requested audience or scopes are not declared by the mini-app")
}

// HostError lets a capability report a failure the mini-app should see.
func HostError(description string) *EncodedError {
	return newError(ErrNameHostApp, description)
}

// asEncoded maps a capability error to its wire form. Errors that are not
// EncodedError values are reported as internalError so host details stay
// native.
func asEncoded(err error) *EncodedError {
	var enc *EncodedError
	if errors.As(err, &enc) {
		return enc
	}
	return errInternal()
}
