package errors

import (
	"net/http"
	"strings"
)

// ErrorCode identifies a failure category. Codes carry a module prefix
// (COMMON, RXN, DS) followed by a sequence number.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

const (
	ErrCodeOK      ErrorCode = "OK"
	ErrCodeUnknown ErrorCode = "UNKNOWN"
)

// Common
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
)

// RXN plugin
const (
	ErrCodeRXNInvalidInput      ErrorCode = "RXN_001"
	ErrCodeRXNInvalidParams     ErrorCode = "RXN_002"
	ErrCodeRXNSubmitFailed      ErrorCode = "RXN_003"
	ErrCodeRXNPollFailed        ErrorCode = "RXN_004"
	ErrCodeRXNJobFailed         ErrorCode = "RXN_005"
	ErrCodeRXNCacheMiss         ErrorCode = "RXN_006"
	ErrCodeRXNCacheIO           ErrorCode = "RXN_007"
	ErrCodeRXNNotLoggedIn       ErrorCode = "RXN_008"
	ErrCodeRXNCredentials       ErrorCode = "RXN_009"
	ErrCodeRXNProjectSync       ErrorCode = "RXN_010"
	ErrCodeRXNNoActions         ErrorCode = "RXN_011"
	ErrCodeRXNResultMalformed   ErrorCode = "RXN_012"
	ErrCodeRXNTooManyInvalid    ErrorCode = "RXN_013"
	ErrCodeRXNInputSourceFailed ErrorCode = "RXN_014"
)

// Deep Search plugin
const (
	ErrCodeDSCollectionNotFound ErrorCode = "DS_001"
	ErrCodeDSQueryFailed        ErrorCode = "DS_002"
	ErrCodeDSInvalidIdentifier  ErrorCode = "DS_003"
	ErrCodeDSNotLoggedIn        ErrorCode = "DS_004"
	ErrCodeDSCredentials        ErrorCode = "DS_005"
	ErrCodeDSNoResults          ErrorCode = "DS_006"
)

// ErrorCodeHTTPStatus maps codes to the status the HTTP API answers with.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeOK:                 http.StatusOK,
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeFeatureDisabled:    http.StatusNotImplemented,

	ErrCodeRXNInvalidInput:      http.StatusBadRequest,
	ErrCodeRXNInvalidParams:     http.StatusBadRequest,
	ErrCodeRXNSubmitFailed:      http.StatusBadGateway,
	ErrCodeRXNPollFailed:        http.StatusGatewayTimeout,
	ErrCodeRXNJobFailed:         http.StatusBadGateway,
	ErrCodeRXNCacheMiss:         http.StatusNotFound,
	ErrCodeRXNCacheIO:           http.StatusInternalServerError,
	ErrCodeRXNNotLoggedIn:       http.StatusUnauthorized,
	ErrCodeRXNCredentials:       http.StatusUnauthorized,
	ErrCodeRXNProjectSync:       http.StatusBadGateway,
	ErrCodeRXNNoActions:         http.StatusUnprocessableEntity,
	ErrCodeRXNResultMalformed:   http.StatusBadGateway,
	ErrCodeRXNTooManyInvalid:    http.StatusBadRequest,
	ErrCodeRXNInputSourceFailed: http.StatusBadRequest,

	ErrCodeDSCollectionNotFound: http.StatusNotFound,
	ErrCodeDSQueryFailed:        http.StatusBadGateway,
	ErrCodeDSInvalidIdentifier:  http.StatusBadRequest,
	ErrCodeDSNotLoggedIn:        http.StatusUnauthorized,
	ErrCodeDSCredentials:        http.StatusUnauthorized,
	ErrCodeDSNoResults:          http.StatusNotFound,
}

// ErrorCodeMessage holds the default message per code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeNotFound:           "not found",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",

	ErrCodeRXNInvalidInput:      "invalid SMILES",
	ErrCodeRXNInvalidParams:     "invalid USING parameters",
	ErrCodeRXNSubmitFailed:      "prediction submission failed",
	ErrCodeRXNPollFailed:        "prediction results unavailable",
	ErrCodeRXNJobFailed:         "prediction job failed",
	ErrCodeRXNCacheMiss:         "no cached result",
	ErrCodeRXNCacheIO:           "result cache unavailable",
	ErrCodeRXNNotLoggedIn:       "not logged in to RXN",
	ErrCodeRXNCredentials:       "invalid RXN credentials",
	ErrCodeRXNProjectSync:       "failed to setup RXN project for this workspace",
	ErrCodeRXNNoActions:         "no actions found in the provided paragraph",
	ErrCodeRXNResultMalformed:   "malformed prediction result",
	ErrCodeRXNTooManyInvalid:    "too many invalid reactions",
	ErrCodeRXNInputSourceFailed: "unable to read reactions",

	ErrCodeDSCollectionNotFound: "invalid collection key or name",
	ErrCodeDSQueryFailed:        "Deep Search query failed",
	ErrCodeDSInvalidIdentifier:  "invalid molecule identifier",
	ErrCodeDSNotLoggedIn:        "not logged in to Deep Search",
	ErrCodeDSCredentials:        "invalid Deep Search credentials",
	ErrCodeDSNoResults:          "search returned no result",
}

// HTTPStatusForCode returns the status registered for code in
// ErrorCodeHTTPStatus and 500 for unmapped codes.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the registered message of code, or
// "unknown error".
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the prefix before the first underscore.
func ModuleForCode(code ErrorCode) string {
	parts := strings.SplitN(string(code), "_", 2)
	if len(parts) == 2 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
