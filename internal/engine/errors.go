package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed conversion.
type ErrorKind string

const (
	KindUnsupportedFormat           ErrorKind = "UnsupportedFormat"
	KindInvalidOption               ErrorKind = "InvalidOption"
	KindEngineTimeout               ErrorKind = "EngineTimeout"
	KindUnsupportedCodecCombination ErrorKind = "UnsupportedCodecCombination"
	KindCorruptInput                ErrorKind = "CorruptInput"
	KindEmptyOutput                 ErrorKind = "EmptyOutput"
	KindGeneric                     ErrorKind = "GenericEngineFailure"
)

// Kinds lists every error kind.
var Kinds = []ErrorKind{
	KindUnsupportedFormat,
	KindInvalidOption,
	KindEngineTimeout,
	KindUnsupportedCodecCombination,
	KindCorruptInput,
	KindEmptyOutput,
	KindGeneric,
}

var kindStatus = map[ErrorKind]int{
	KindUnsupportedFormat:           http.StatusUnsupportedMediaType,
	KindInvalidOption:               http.StatusBadRequest,
	KindEngineTimeout:               http.StatusRequestTimeout,
	KindUnsupportedCodecCombination: http.StatusUnprocessableEntity,
	KindCorruptInput:                http.StatusUnprocessableEntity,
	KindEmptyOutput:                 http.StatusInternalServerError,
	KindGeneric:                     http.StatusInternalServerError,
}

var kindMessage = map[ErrorKind]string{
	KindUnsupportedFormat:           "This file format is not supported.",
	KindInvalidOption:               "Invalid conversion settings. Please check the options.",
	KindEngineTimeout:               "The conversion took too long. Please try a smaller file.",
	KindUnsupportedCodecCombination: "This codec combination is not supported. Please try another output format.",
	KindCorruptInput:                "The file appears to be damaged. Please try another file.",
	KindEmptyOutput:                 "The converted file was not produced.",
	KindGeneric:                     "An error occurred during conversion.",
}

// HTTPStatus returns the response status for the kind.
func (k ErrorKind) HTTPStatus() int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing message for the kind.
func (k ErrorKind) Message() string {
	if m, ok := kindMessage[k]; ok {
		return m
	}
	return kindMessage[KindGeneric]
}

// Error is a classified conversion failure.
type Error struct {
	Kind ErrorKind
	// Detail is a user-facing message more specific than Kind.Message.
	Detail string
	// Stderr is the tail of the engine diagnostic output, if any.
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns Detail if set, otherwise the kind's message.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Kind.Message()
}

// Errorf builds an *Error of the given kind with a formatted detail.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around err.
func Wrap(kind ErrorKind, err error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, KindGeneric for
// any other non-nil error and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneric
}

// AsError returns err as an *Error, wrapping unclassified errors as
// KindGeneric.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindGeneric, Err: err}
}

type rule struct {
	substrings []string
	fold       bool
	kind       ErrorKind
	detail     string
}

// Evaluated in order; the first match wins.
var rules = []rule{
	{
		substrings: []string{"Could not find tag for codec", "codec not currently supported in container"},
		kind:       KindUnsupportedCodecCombination,
	},
	{
		substrings: []string{"Invalid data found", "moov atom not found", "Invalid NAL unit"},
		kind:       KindCorruptInput,
	},
	{
		substrings: []string{"Invalid argument", "Unrecognized option", "Error parsing"},
		kind:       KindInvalidOption,
	},
	{
		substrings: []string{"timeout"},
		fold:       true,
		kind:       KindEngineTimeout,
	},
	{
		substrings: []string{"No such file or directory"},
		kind:       KindGeneric,
		detail:     "The input file could not be found.",
	},
	{
		substrings: []string{"Permission denied"},
		kind:       KindGeneric,
		detail:     "Permission denied while accessing the file.",
	},
}

// Classify maps engine diagnostic output to an error kind and, for some
// generic failures, a specific message. Unmatched output is KindGeneric.
func Classify(stderr string) (ErrorKind, string) {
	lower := strings.ToLower(stderr)
	for _, r := range rules {
		for _, s := range r.substrings {
			if r.fold {
				if strings.Contains(lower, strings.ToLower(s)) {
					return r.kind, r.detail
				}
				continue
			}
			if strings.Contains(stderr, s) {
				return r.kind, r.detail
			}
		}
	}
	return KindGeneric, ""
}
