package response

// Error codes attached to failed responses. Codes are coarse categories;
// ErrorDetails carries the specifics.
const (
	CodeUnknownError     = "UNKNOWN_ERROR"
	CodeToolFailed       = "EXECUTION_TOOL_FAILED"
	CodeLLMFailed        = "EXECUTION_LLM_FAILED"
	CodeHandlerFailed    = "EXECUTION_HANDLER_FAILED"
	CodeCircuitOpen      = "EXECUTION_CIRCUIT_OPEN"
	CodeTimeout          = "EXECUTION_TIMEOUT"
	CodeCancelled        = "EXECUTION_CANCELLED"
	CodeInvalidReference = "RESOLUTION_INVALID_REFERENCE"
	CodePropagatedError  = "PROPAGATED_ERROR"
	CodeBodyNotBound     = "EXECUTION_BODY_NOT_BOUND"
)

// FailureCode returns the kind-specific execution error code for a task
// body failure.
func FailureCode(kind string) string {
	switch kind {
	case "tool":
		return CodeToolFailed
	case "llm":
		return CodeLLMFailed
	case "direct_handler":
		return CodeHandlerFailed
	default:
		return CodeUnknownError
	}
}
