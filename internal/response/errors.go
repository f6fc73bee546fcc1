package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Listening attempt ─────────────────────────────────────────────
	ErrExamNotAvailable    ErrCode = "EXAM_NOT_AVAILABLE"
	ErrNoAttempt           ErrCode = "NO_OPEN_ATTEMPT"
	ErrInvalidPart         ErrCode = "INVALID_PART"
	ErrInvalidDuration     ErrCode = "INVALID_AUDIO_DURATION"
	ErrAlreadyStarted      ErrCode = "EXAM_ALREADY_STARTED"
	ErrNotStarted          ErrCode = "EXAM_NOT_STARTED"
	ErrSubmitNotAllowed    ErrCode = "SUBMIT_NOT_ALLOWED"
	ErrAlreadySubmitted    ErrCode = "EXAM_ALREADY_SUBMITTED"
	ErrSubmitting          ErrCode = "SUBMISSION_IN_PROGRESS"
	ErrUnresolvedNumber    ErrCode = "UNRESOLVED_QUESTION_NUMBER"
	ErrWrongInteraction    ErrCode = "WRONG_INTERACTION"
	ErrUnknownOption       ErrCode = "UNKNOWN_OPTION"
	ErrNoWidget            ErrCode = "NO_WIDGET"
	ErrOptionNotPlaced     ErrCode = "OPTION_NOT_PLACED"
	ErrHighlightNotFound   ErrCode = "HIGHLIGHT_NOT_FOUND"
	ErrBackendUnavailable  ErrCode = "BACKEND_UNAVAILABLE"
	ErrBackendUnauthorized ErrCode = "BACKEND_UNAUTHORIZED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Listening attempt ─────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is not available."
	case ErrNoAttempt:
		return "Open the exam before using it."
	case ErrInvalidPart:
		return "Part must be between 1 and 4."
	case ErrInvalidDuration:
		return "The exam audio length could not be read."
	case ErrAlreadyStarted:
		return "The exam has already started."
	case ErrNotStarted:
		return "The exam has not started yet."
	case ErrSubmitNotAllowed:
		return "Answers can be submitted once the audio time is over."
	case ErrAlreadySubmitted:
		return "This exam has already been submitted."
	case ErrSubmitting:
		return "Your answers are being submitted."
	case ErrUnresolvedNumber:
		return "This question number does not exist in the exam."
	case ErrWrongInteraction:
		return "This question is answered with a different control."
	case ErrUnknownOption:
		return "The selected option does not belong to this question."
	case ErrNoWidget:
		return "No matching question was found."
	case ErrOptionNotPlaced:
		return "The option is not in the slot it was dragged from."
	case ErrHighlightNotFound:
		return "Highlight not found."
	case ErrBackendUnavailable:
		return "The exam server could not be reached. Please try again."
	case ErrBackendUnauthorized:
		return "The exam server rejected your session. Please log in again."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
