package models

import "strings"

type Model_Response struct {
	Parts []Model_Part `json:"parts"`
}

// Parts are either text or a function call.

type FunctionCall struct {
	ID   string                 `json:"id,omitempty"` // Unique ID for this specific call instance
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
	// ArgsError is set when the provider sent arguments that are not a JSON
	// object. Args is empty in that case.
	ArgsError string `json:"-"`
}

type Model_Part struct {
	Text         *string       `json:"text,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

// TextPart wraps s as a text part.
func TextPart(s string) Model_Part {
	return Model_Part{Text: &s}
}

// CallPart wraps a function call as a part.
func CallPart(call FunctionCall) Model_Part {
	return Model_Part{FunctionCall: &call}
}

// Text concatenates all text parts.
func (r Model_Response) Text() string {
	var sb strings.Builder
	for _, p := range r.Parts {
		if p.Text != nil {
			sb.WriteString(*p.Text)
		}
	}
	return sb.String()
}

// FunctionCalls returns the requested calls in order.
func (r Model_Response) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range r.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, *p.FunctionCall)
		}
	}
	return calls
}
