package bind

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	perr "turnstile/internal/platform/errors"
)

type message struct {
	ConversationID string `json:"conversation_id" validate:"required,nonblank,max=8"`
	Text           string `json:"text" validate:"required,min=2"`
	Step           int    `json:"-" validate:"gte=0"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		body  string
		code  perr.ErrorCode
		field string
	}{
		{"ok", `{"conversation_id":"c1","text":"hello"}`, perr.ErrorCodeUnknown, ""},
		{"empty", ``, perr.ErrorCodeJSON, ""},
		{"malformed", `{`, perr.ErrorCodeJSON, ""},
		{"unknown field", `{"conversation_id":"c1","text":"hi","x":1}`, perr.ErrorCodeJSON, ""},
		{"trailing", `{"conversation_id":"c1","text":"hi"} {}`, perr.ErrorCodeJSON, ""},
		{"missing", `{"text":"hello"}`, perr.ErrorCodeValidation, "conversation_id"},
		{"blank id", `{"conversation_id":"   ","text":"hello"}`, perr.ErrorCodeValidation, "conversation_id"},
		{"too long", `{"conversation_id":"123456789","text":"hello"}`, perr.ErrorCodeValidation, "conversation_id"},
		{"too short", `{"conversation_id":"c1","text":"h"}`, perr.ErrorCodeValidation, "text"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseJSON[message](post(tc.body))
			if tc.name == "ok" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.ConversationID != "c1" || got.Text != "hello" {
					t.Fatalf("decoded %+v", got)
				}
				return
			}
			if perr.CodeOf(err) != tc.code {
				t.Fatalf("code = %v want %v (%v)", perr.CodeOf(err), tc.code, err)
			}
			if tc.field != "" {
				if f := perr.WireFrom(err).Field; f != tc.field {
					t.Fatalf("field = %q want %q", f, tc.field)
				}
			}
		})
	}
}

func TestParseJSON_BodyLimit(t *testing.T) {
	t.Parallel()
	big := `{"conversation_id":"c1","text":"` + strings.Repeat("a", int(MaxBody)) + `"}`
	if _, err := ParseJSON[message](post(big)); perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error for oversized body, got %v", err)
	}
}

func TestValidate_Messages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   message
		want string
	}{
		{message{ConversationID: " ", Text: "hello"}, "conversation_id must not be blank"},
		{message{ConversationID: "c1", Text: "h"}, "text must be at least 2"},
		{message{ConversationID: "c123456789", Text: "hello"}, "conversation_id must be at most 8"},
	}
	for _, tc := range cases {
		err := Validate(tc.in)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("Validate(%+v) = %v want %q", tc.in, err, tc.want)
		}
	}
}

func TestValidate_NonStruct(t *testing.T) {
	t.Parallel()
	if err := Validate(42); perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("expected JSON error for non-struct, got %v", err)
	}
}

func TestFieldMessage_PlainError(t *testing.T) {
	t.Parallel()
	if f, m := FieldMessage(nil); f != "" || m != "" {
		t.Fatalf("nil error gave %q %q", f, m)
	}
	if f, m := FieldMessage(perr.New(perr.ErrorCodeUnknown, "boom")); f != "" || !strings.Contains(m, "boom") {
		t.Fatalf("plain error gave %q %q", f, m)
	}
}

func TestJSONName(t *testing.T) {
	t.Parallel()
	type s struct {
		A string `json:"a,omitempty"`
		B string `json:"-"`
		C string
	}
	typ := func(i int) string { return jsonName(reflect.TypeOf(s{}).Field(i)) }
	if typ(0) != "a" || typ(1) != "B" || typ(2) != "C" {
		t.Fatalf("names = %q %q %q", typ(0), typ(1), typ(2))
	}
}
