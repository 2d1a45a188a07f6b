package http

import (
	stdhttp "net/http"
	"strings"

	"github.com/rotisserie/eris"

	"quillcast/app/internal/discover"
	"quillcast/app/internal/llm"
	"quillcast/app/internal/studio"
	"quillcast/app/internal/voice"
)

const (
	llmFailureMessage    = "The AI service had trouble with that request. Please try again."
	errorFallbackMessage = "We couldn't process your request right now."
	rateLimitMessage     = "You're sending requests a bit too quickly. Please wait a moment and try again."
	unauthorizedMessage  = "A valid API key is required."
)

// apiError is the error half of the response envelope.
type apiError struct {
	Message string `json:"message"`
}

// envelope is the uniform response body: exactly one of Data or Error is set.
type envelope[T any] struct {
	Data  T         `json:"data"`
	Error *apiError `json:"error"`
}

type response[T any] struct {
	Status int
	Body   envelope[T]
}

func ok[T any](data T) *response[T] {
	return &response[T]{
		Status: stdhttp.StatusOK,
		Body:   envelope[T]{Data: data},
	}
}

func fail[T any](status int, message string) *response[T] {
	return &response[T]{
		Status: status,
		Body:   envelope[T]{Error: &apiError{Message: message}},
	}
}

// classifyError maps service errors onto HTTP statuses and user-facing
// messages. Provider failures never leak upstream detail.
func classifyError(err error) (int, string) {
	if err == nil {
		return stdhttp.StatusInternalServerError, errorFallbackMessage
	}

	switch {
	case eris.Is(err, voice.ErrPersonaNotFound),
		eris.Is(err, voice.ErrNoProfile),
		eris.Is(err, discover.ErrPillarNotFound),
		eris.Is(err, studio.ErrGenerationNotFound),
		eris.Is(err, studio.ErrCalendarItemNotFound):
		return stdhttp.StatusNotFound, eris.Cause(err).Error()

	case eris.Is(err, voice.ErrInsufficientPosts),
		eris.Is(err, voice.ErrInvalidPlatform),
		eris.Is(err, discover.ErrNoPillars),
		eris.Is(err, studio.ErrProfileRequired),
		eris.Is(err, studio.ErrInvalidStatus):
		return stdhttp.StatusBadRequest, eris.Cause(err).Error()

	case eris.Is(err, llm.ErrBlocked), eris.Is(err, llm.ErrMalformedPayload):
		return stdhttp.StatusInternalServerError, llmFailureMessage
	}

	cause := strings.ToLower(eris.Cause(err).Error())
	full := strings.ToLower(err.Error())
	switch {
	case strings.Contains(cause, "required") || strings.Contains(cause, "empty"):
		return stdhttp.StatusBadRequest, eris.Cause(err).Error()
	case strings.Contains(full, "chat completion") || strings.Contains(full, "refus"):
		return stdhttp.StatusInternalServerError, llmFailureMessage
	default:
		return stdhttp.StatusInternalServerError, errorFallbackMessage
	}
}
