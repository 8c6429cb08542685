package cliexec

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, false},
		{"leading log lines", "[info] starting\n{\"a\":1}\n", `{"a":1}`, false},
		{"trailing text", "{\"a\":1}\n[info] bye", `{"a":1}`, false},
		{"nested braces", `x {"a":{"b":[1,{"c":2}]}} y`, `{"a":{"b":[1,{"c":2}]}}`, false},
		{"brace inside string", `{"msg":"use {name} here"}`, `{"msg":"use {name} here"}`, false},
		{"stray brace before payload", "[warn] {unterminated\n{\"ok\":true}", `{"ok":true}`, false},
		{"two objects returns first", `{"first":1}{"second":2}`, `{"first":1}`, false},
		{"no brace", "gateway running", "", true},
		{"empty", "", "", true},
		{"unbalanced", `{"a":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Errorf("expected ErrNoJSON, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
