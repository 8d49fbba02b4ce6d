package httpErrors

import (
	"errors"
	"net/http"

	dErrors "dealerdesk/pkg/domain-errors"
)

// ToHTTPStatus maps a domain error code onto the HTTP status the transport
// layer should answer with. Unknown codes fall through to 500 so a missing
// mapping never leaks a 200.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeTenantContextRequired:
		// A tenant-scoped entity was resolved without tenant context: a bug in
		// the calling handler, surfaced as a client error per the isolation rules.
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeUnknownEntity:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeDuplicateEntity:
		return http.StatusConflict
	case dErrors.CodeTenantConnectionFailed:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// FromError extracts the domain code from err, defaulting to internal_error.
func FromError(err error) (dErrors.Code, int) {
	code := dErrors.CodeInternal
	var de *dErrors.Error
	if errors.As(err, &de) {
		code = de.Code
	}
	return code, ToHTTPStatus(code)
}
