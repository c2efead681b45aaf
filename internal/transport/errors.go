package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	apperrors "github.com/maher4real/support-ticket-system/pkg/util/errorutil"
)

// Outcome classifies the result of a call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// GenericFailureMessage is used when a failed response carries no
// readable message.
const GenericFailureMessage = "Request failed. Please try again."

// Error is a classified failure returned by Client.Do.
type Error struct {
	Op         string
	Outcome    Outcome
	Timeout    bool
	StatusCode int
	Message    string
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Outcome.String())
	switch {
	case e.Timeout:
		b.WriteString(" timeout")
	case e.StatusCode > 0:
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DomainError maps the failure onto the API error taxonomy.
func (e *Error) DomainError() *apperrors.DomainError {
	var target *apperrors.DomainError
	if e.Outcome == OutcomePermanent {
		errors.As(apperrors.NewUpstreamRejected(e.Message, e.StatusCode, e), &target)
	} else {
		errors.As(apperrors.NewUpstreamUnavailable("ticket service unavailable", e), &target)
	}
	return target
}

// Classify returns the outcome carried by err. Unclassified errors are
// treated as transient.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Outcome
	}
	return OutcomeTransient
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == OutcomeTransient
}

// IsPermanent reports whether err will not succeed on retry.
func IsPermanent(err error) bool {
	return Classify(err) == OutcomePermanent
}

// IsTimeout reports whether err is a per-attempt timeout.
func IsTimeout(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Timeout
}

// MessageOf returns the human readable message of err.
func MessageOf(err error) string {
	var te *Error
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	if err == nil {
		return ""
	}
	return GenericFailureMessage
}

// transientStatuses are retried; every other non-2xx status is permanent.
var transientStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooEarly:            true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransientStatus reports whether status should be retried.
func IsTransientStatus(status int) bool {
	return transientStatuses[status]
}

// classifyHTTPError builds the failure for a non-2xx response.
func classifyHTTPError(op string, status int, body []byte) *Error {
	outcome := OutcomePermanent
	if IsTransientStatus(status) {
		outcome = OutcomeTransient
	}
	return &Error{
		Op:         op,
		Outcome:    outcome,
		StatusCode: status,
		Message:    ExtractMessage(body, status),
	}
}

// ExtractMessage pulls the first readable message from an error body:
// the first field of a JSON object (descending into arrays and nested
// objects), the first element of a JSON array, or the raw text.
func ExtractMessage(body []byte, status int) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 {
		if json.Valid(trimmed) {
			if msg := firstMessage(trimmed); msg != "" {
				return msg
			}
		} else if trimmed[0] != '<' {
			return truncate(string(trimmed), 300)
		}
	}
	if status > 0 {
		return fmt.Sprintf("Request failed with status %d.", status)
	}
	return GenericFailureMessage
}

type field struct {
	key   string
	value json.RawMessage
}

func firstMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return ""
		}
		for _, item := range items {
			if msg := firstMessage(item); msg != "" {
				return msg
			}
		}
	case '{':
		fields := orderedFields(raw)
		// DRF puts request level messages under "detail"
		for _, f := range fields {
			if f.key == "detail" || f.key == "message" {
				if msg := firstMessage(f.value); msg != "" {
					return msg
				}
			}
		}
		for _, f := range fields {
			if msg := firstMessage(f.value); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// orderedFields decodes the top level of a JSON object keeping key order.
func orderedFields(raw json.RawMessage) []field {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fields
		}
		key, ok := tok.(string)
		if !ok {
			return fields
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fields
		}
		fields = append(fields, field{key: key, value: value})
	}
	return fields
}

// truncate keeps at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
