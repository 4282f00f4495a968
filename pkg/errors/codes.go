package errors

import (
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeValidation      ErrorCode = "COMMON_010"
	ErrCodeSerialization   ErrorCode = "COMMON_011"
	ErrCodeStorage         ErrorCode = "COMMON_013"
	ErrCodeExternalService ErrorCode = "COMMON_014"
	ErrCodeCanceled        ErrorCode = "COMMON_017"
)

// Aliases used at call sites.
const (
	CodeUnknown  = ErrorCode("UNKNOWN")
	CodeOK       = ErrorCode("OK")
	CodeInternal = ErrCodeInternal
)

// Family Hierarchy Error Codes
const (
	ErrCodeCycleOrDuplicateParent ErrorCode = "FAM_001"
	ErrCodeUnknownParent          ErrorCode = "FAM_002"
	ErrCodeUnknownClassNode       ErrorCode = "FAM_003"
)

// Similarity Space Error Codes
const (
	ErrCodeSizeMismatch     ErrorCode = "SIM_001"
	ErrCodeUnknownEntity    ErrorCode = "SIM_002"
	ErrCodeDegenerateInput  ErrorCode = "SIM_003"
	ErrCodeTooManyCompounds ErrorCode = "SIM_004"
)

// Aggregation / Statistics Error Codes
const (
	ErrCodeAggregationConsistency     ErrorCode = "AGG_001"
	ErrCodeSimilarityValidationFailed ErrorCode = "AGG_002"
	ErrCodeInsufficientSample         ErrorCode = "AGG_003"
)

// File I/O Error Codes
const (
	ErrCodeInputParse  ErrorCode = "IO_001"
	ErrCodeOutputWrite ErrorCode = "IO_002"
	ErrCodePublish     ErrorCode = "IO_003"
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:        "internal error",
	ErrCodeValidation:      "validation failed",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeStorage:         "storage error",
	ErrCodeExternalService: "external service error",
	ErrCodeCanceled:        "operation canceled",

	ErrCodeCycleOrDuplicateParent: "malformed family hierarchy",
	ErrCodeUnknownParent:          "family hierarchy references an unknown parent",
	ErrCodeUnknownClassNode:       "unknown class node",

	ErrCodeSizeMismatch:     "similarity array length does not match id count",
	ErrCodeUnknownEntity:    "entity is not part of the similarity space",
	ErrCodeDegenerateInput:  "similarity of an entity to itself is undefined",
	ErrCodeTooManyCompounds: "similarity space exceeds the configured compound limit",

	ErrCodeAggregationConsistency:     "group membership does not match aggregated pair counts",
	ErrCodeSimilarityValidationFailed: "stored similarity disagrees with recomputed value",
	ErrCodeInsufficientSample:         "sample is too small for the requested statistic",

	ErrCodeInputParse:  "failed to parse input file",
	ErrCodeOutputWrite: "failed to write output file",
	ErrCodePublish:     "failed to publish artifact",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

// Process exit codes returned by the CLI.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInputData   = 3
	ExitInvariant   = 4
	ExitOutputWrite = 5
)

// ExitCodeForCode maps an ErrorCode onto a process exit status. Malformed
// inputs and broken internal invariants get distinct codes so that workflow
// runners can tell upstream data problems apart from logic errors.
func ExitCodeForCode(code ErrorCode) int {
	switch code {
	case CodeOK:
		return ExitOK
	case ErrCodeValidation:
		return ExitUsage
	case ErrCodeCycleOrDuplicateParent, ErrCodeUnknownParent, ErrCodeUnknownClassNode,
		ErrCodeSizeMismatch, ErrCodeTooManyCompounds, ErrCodeInputParse:
		return ExitInputData
	case ErrCodeUnknownEntity, ErrCodeDegenerateInput,
		ErrCodeAggregationConsistency, ErrCodeSimilarityValidationFailed:
		return ExitInvariant
	case ErrCodeOutputWrite, ErrCodePublish, ErrCodeStorage:
		return ExitOutputWrite
	default:
		return ExitFailure
	}
}
