package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error is a non-2xx response from the API.
type Error struct {
	Status  int
	Message string
	// Fields holds per-field messages keyed by the request field name.
	Fields map[string][]string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("api error (status %d): %s", e.Status, msg)
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+strings.Join(e.Fields[f], " "))
	}
	return fmt.Sprintf("api error (status %d): %s (%s)", e.Status, msg, strings.Join(parts, "; "))
}

// parseError decodes the error body shapes the API produces: {"detail": ".."},
// {"error": ".."}, {"non_field_errors": [..]} and {"field": [..]}.
func parseError(status int, body []byte) *Error {
	e := &Error{Status: status}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		e.Message = http.StatusText(status)
		return e
	}

	for key, val := range raw {
		switch key {
		case "detail", "error", "message":
			var s string
			if json.Unmarshal(val, &s) == nil {
				e.Message = s
			}
		case "status":
		default:
			msgs := decodeMessages(val)
			if len(msgs) == 0 {
				continue
			}
			if e.Fields == nil {
				e.Fields = map[string][]string{}
			}
			e.Fields[key] = msgs
		}
	}
	if nfe := e.Fields["non_field_errors"]; len(nfe) > 0 && e.Message == "" {
		e.Message = strings.Join(nfe, " ")
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func decodeMessages(val json.RawMessage) []string {
	var list []string
	if json.Unmarshal(val, &list) == nil {
		return list
	}
	var s string
	if json.Unmarshal(val, &s) == nil && s != "" {
		return []string{s}
	}
	return nil
}
