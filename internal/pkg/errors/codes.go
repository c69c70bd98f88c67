package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message.
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Proxy errors (2000-2999)
	ErrUpstreamUnreachable = 2000
	ErrUpstreamStatus      = 2001
	ErrRequestTooLarge     = 2002
	ErrGatewayKeyInvalid   = 2003

	// Guardrail errors (3000-3999)
	ErrGuardrailTriggered = 3000
	ErrPolicyBlocked      = 3001

	// Recording errors (4000-4999)
	ErrRecordNotFound   = 4000
	ErrRecordWriteFail  = 4001
	ErrVaultUnavailable = 4002
	ErrChecksumMismatch = 4003

	// Trust errors (5000-5999)
	ErrChainBroken        = 5000
	ErrAttestationInvalid = 5001
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrUpstreamUnreachable: {ErrUpstreamUnreachable, http.StatusBadGateway, "Upstream provider unreachable"},
	ErrUpstreamStatus:      {ErrUpstreamStatus, http.StatusBadGateway, "Upstream provider error"},
	ErrRequestTooLarge:     {ErrRequestTooLarge, http.StatusRequestEntityTooLarge, "Request body too large"},
	ErrGatewayKeyInvalid:   {ErrGatewayKeyInvalid, http.StatusUnauthorized, "Invalid or missing gateway key"},

	ErrGuardrailTriggered: {ErrGuardrailTriggered, http.StatusTooManyRequests, "Agent guardrail triggered"},
	ErrPolicyBlocked:      {ErrPolicyBlocked, http.StatusForbidden, "Request blocked by prevention policy"},

	ErrRecordNotFound:   {ErrRecordNotFound, http.StatusNotFound, "AIR record not found"},
	ErrRecordWriteFail:  {ErrRecordWriteFail, http.StatusInternalServerError, "Failed to write AIR record"},
	ErrVaultUnavailable: {ErrVaultUnavailable, http.StatusServiceUnavailable, "Vault storage unavailable"},
	ErrChecksumMismatch: {ErrChecksumMismatch, http.StatusConflict, "Vault content checksum mismatch"},

	ErrChainBroken:        {ErrChainBroken, http.StatusConflict, "Audit chain integrity broken"},
	ErrAttestationInvalid: {ErrAttestationInvalid, http.StatusConflict, "Evidence attestation invalid"},
}

// GetMessage returns the message for a code, or a generic fallback.
func GetMessage(code int) string {
	if c, ok := codeMap[code]; ok {
		return c.Message
	}
	return fmt.Sprintf("Unknown error (code %d)", code)
}

// GetHTTPStatus returns the HTTP status for a code, defaulting to 500.
func GetHTTPStatus(code int) int {
	if c, ok := codeMap[code]; ok {
		return c.Status
	}
	return http.StatusInternalServerError
}
