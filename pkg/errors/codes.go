package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes are prefixed by the module that owns them: COMMON, SIG (signature
// partitioning), CLU (clustering), SCR (activity scoring), RNK (ranking),
// RUN (pipeline runs).
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeValidation         ErrorCode = "COMMON_005"
	ErrCodeSerialization      ErrorCode = "COMMON_006"
	ErrCodeDatabaseError      ErrorCode = "COMMON_007"
	ErrCodeCacheError         ErrorCode = "COMMON_008"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_009"
	ErrCodeTimeout            ErrorCode = "COMMON_010"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_011"
	ErrCodeStorageError       ErrorCode = "COMMON_012"
)

// Signature-partitioning error codes. These represent expected-possible
// outcomes of real screening data and are recoverable at the caller.
const (
	ErrCodeDegenerateFeature    ErrorCode = "SIG_001"
	ErrCodeInsufficientSamples  ErrorCode = "SIG_002"
	ErrCodeFeatureSpaceMismatch ErrorCode = "SIG_003"
	ErrCodeUnknownWeighting     ErrorCode = "SIG_004"
)

// Clustering error codes.
const (
	ErrCodeNoClustersFound  ErrorCode = "CLU_001"
	ErrCodeEmptyRetainedSet ErrorCode = "CLU_002"
	ErrCodeClusterParams    ErrorCode = "CLU_003"
	ErrCodeProjectionFailed ErrorCode = "CLU_004"
)

// Activity-scoring error codes.
const (
	ErrCodeDivergenceInput   ErrorCode = "SCR_001"
	ErrCodeNoControlClusters ErrorCode = "SCR_002"
	ErrCodeEmptySignature    ErrorCode = "SCR_003"
)

// Ranking error codes.
const (
	ErrCodeUnknownRankStrategy ErrorCode = "RNK_001"
	ErrCodeNoScorableCompounds ErrorCode = "RNK_002"
)

// Run / orchestration error codes.
const (
	ErrCodeRunNotFound      ErrorCode = "RUN_001"
	ErrCodeRunStateInvalid  ErrorCode = "RUN_002"
	ErrCodeProfileFetch     ErrorCode = "RUN_003"
	ErrCodeProfileParse     ErrorCode = "RUN_004"
	ErrCodeGroupNotFound    ErrorCode = "RUN_005"
	ErrCodeNoFeatureColumns ErrorCode = "RUN_006"
	ErrCodeRunAlreadyQueued ErrorCode = "RUN_007"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeMessageQueueError:  http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,

	ErrCodeDegenerateFeature:    http.StatusUnprocessableEntity,
	ErrCodeInsufficientSamples:  http.StatusUnprocessableEntity,
	ErrCodeFeatureSpaceMismatch: http.StatusBadRequest,
	ErrCodeUnknownWeighting:     http.StatusBadRequest,

	ErrCodeNoClustersFound:  http.StatusUnprocessableEntity,
	ErrCodeEmptyRetainedSet: http.StatusUnprocessableEntity,
	ErrCodeClusterParams:    http.StatusBadRequest,
	ErrCodeProjectionFailed: http.StatusInternalServerError,

	ErrCodeDivergenceInput:   http.StatusUnprocessableEntity,
	ErrCodeNoControlClusters: http.StatusUnprocessableEntity,
	ErrCodeEmptySignature:    http.StatusUnprocessableEntity,

	ErrCodeUnknownRankStrategy: http.StatusBadRequest,
	ErrCodeNoScorableCompounds: http.StatusUnprocessableEntity,

	ErrCodeRunNotFound:      http.StatusNotFound,
	ErrCodeRunStateInvalid:  http.StatusConflict,
	ErrCodeProfileFetch:     http.StatusBadGateway,
	ErrCodeProfileParse:     http.StatusUnprocessableEntity,
	ErrCodeGroupNotFound:    http.StatusBadRequest,
	ErrCodeNoFeatureColumns: http.StatusBadRequest,
	ErrCodeRunAlreadyQueued: http.StatusConflict,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeMessageQueueError:  "message queue error",
	ErrCodeStorageError:       "object storage error",

	ErrCodeDegenerateFeature:    "degenerate feature distribution",
	ErrCodeInsufficientSamples:  "insufficient observations for feature test",
	ErrCodeFeatureSpaceMismatch: "feature spaces are not identical",
	ErrCodeUnknownWeighting:     "unsupported CDF weighting scheme",

	ErrCodeNoClustersFound:  "no clusters found (all points labelled noise)",
	ErrCodeEmptyRetainedSet: "no clusters survived refinement",
	ErrCodeClusterParams:    "invalid clustering parameters",
	ErrCodeProjectionFailed: "dimensionality reduction failed",

	ErrCodeDivergenceInput:   "invalid input for divergence computation",
	ErrCodeNoControlClusters: "matched control population has no retained clusters",
	ErrCodeEmptySignature:    "signature feature set is empty",

	ErrCodeUnknownRankStrategy: "unsupported ranking strategy",
	ErrCodeNoScorableCompounds: "no compound produced a score record",

	ErrCodeRunNotFound:      "run not found",
	ErrCodeRunStateInvalid:  "run is not in a valid state for this operation",
	ErrCodeProfileFetch:     "failed to fetch feature profile",
	ErrCodeProfileParse:     "failed to parse feature profile",
	ErrCodeGroupNotFound:    "population group not present in profile",
	ErrCodeNoFeatureColumns: "profile contains no numeric feature columns",
	ErrCodeRunAlreadyQueued: "run already queued",
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

// IsDegenerateInput reports whether code identifies one of the
// expected-possible degenerate-data outcomes, as opposed to a genuine
// failure. Callers use this to exclude a compound and continue rather than
// abort the whole run.
func IsDegenerateInput(code ErrorCode) bool {
	switch code {
	case ErrCodeDegenerateFeature, ErrCodeInsufficientSamples,
		ErrCodeNoClustersFound, ErrCodeEmptyRetainedSet,
		ErrCodeNoControlClusters:
		return true
	default:
		return false
	}
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
