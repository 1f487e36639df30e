package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
	ErrCodeCanceled           ErrorCode = "COMMON_017"
)

// Linkage engine error codes.
const (
	// ErrCodeStorageUnavailable is fatal: without catalog data no answer is possible.
	ErrCodeStorageUnavailable ErrorCode = "LINK_001"
	// ErrCodeEmbeddingUnavailable is recoverable: callers fall back to lexical matching.
	ErrCodeEmbeddingUnavailable ErrorCode = "LINK_002"
	ErrCodeCodeNotFound         ErrorCode = "LINK_003"
	ErrCodeRuleTableInvalid     ErrorCode = "LINK_004"
	ErrCodeSnapshotInvalid      ErrorCode = "LINK_005"
	ErrCodeVectorSearchFailed   ErrorCode = "LINK_006"
	ErrCodeLexicalSearchFailed  ErrorCode = "LINK_007"
)

// Short aliases used at call sites.
const (
	CodeUnknown              = ErrorCode("UNKNOWN")
	CodeOK                   = ErrorCode("OK")
	CodeInternal             = ErrCodeInternal
	CodeInvalidParam         = ErrCodeBadRequest
	CodeNotFound             = ErrCodeNotFound
	CodeConflict             = ErrCodeConflict
	CodeRateLimit            = ErrCodeTooManyRequests
	CodeTimeout              = ErrCodeTimeout
	CodeCanceled             = ErrCodeCanceled
	CodeStorageUnavailable   = ErrCodeStorageUnavailable
	CodeEmbeddingUnavailable = ErrCodeEmbeddingUnavailable
	CodeCodeNotFound         = ErrCodeCodeNotFound
	CodeRuleTableInvalid     = ErrCodeRuleTableInvalid
	CodeSnapshotInvalid      = ErrCodeSnapshotInvalid
	CodeVectorSearchFailed   = ErrCodeVectorSearchFailed
	CodeLexicalSearchFailed  = ErrCodeLexicalSearchFailed
	CodeServiceUnavailable   = ErrCodeServiceUnavailable
	CodeValidation           = ErrCodeValidation
	CodeSerialization        = ErrCodeSerialization
	CodeDatabaseError        = ErrCodeDatabaseError
	CodeCacheError           = ErrCodeCacheError
	CodeExternalService      = ErrCodeExternalService
	CodeFeatureDisabled      = ErrCodeFeatureDisabled
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeFeatureDisabled:    http.StatusForbidden,
	ErrCodeCanceled:           499,

	ErrCodeStorageUnavailable:   http.StatusServiceUnavailable,
	ErrCodeEmbeddingUnavailable: http.StatusServiceUnavailable,
	ErrCodeCodeNotFound:         http.StatusNotFound,
	ErrCodeRuleTableInvalid:     http.StatusUnprocessableEntity,
	ErrCodeSnapshotInvalid:      http.StatusUnprocessableEntity,
	ErrCodeVectorSearchFailed:   http.StatusBadGateway,
	ErrCodeLexicalSearchFailed:  http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",
	ErrCodeCanceled:           "request canceled",

	ErrCodeStorageUnavailable:   "code catalog storage unavailable",
	ErrCodeEmbeddingUnavailable: "embedding provider unavailable",
	ErrCodeCodeNotFound:         "code not found in catalog",
	ErrCodeRuleTableInvalid:     "invalid clinical rule table",
	ErrCodeSnapshotInvalid:      "invalid catalog snapshot",
	ErrCodeVectorSearchFailed:   "vector search failed",
	ErrCodeLexicalSearchFailed:  "lexical search failed",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
