package validate_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/p-n-ai/lesson-bot/internal/validate"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"simple", "hello", true},
		{"empty", "", false},
		{"max length", strings.Repeat("x", 1000), true},
		{"too long", strings.Repeat("x", 1001), false},
		{"max length cyrillic", strings.Repeat("ж", 1000), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validate.Text(tt.in); got != tt.want {
				t.Errorf("Text() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/v", true},
		{"http://example.com", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := validate.URL(tt.in); got != tt.want {
			t.Errorf("URL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"two", "A\nB", true},
		{"one", "A", false},
		{"too long entry", "A\n" + strings.Repeat("x", 101), false},
		{"blank lines ignored", "A\n\n  \nB", true},
		{"only whitespace", " \n ", false},
		{"three", "A\nB\nC", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validate.Options(tt.in); got != tt.want {
				t.Errorf("Options() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckOptions(t *testing.T) {
	opts, err := validate.CheckOptions(" Robot \nHuman")
	if err != nil {
		t.Fatalf("CheckOptions() error = %v", err)
	}
	if len(opts) != 2 || opts[0] != "Robot" || opts[1] != "Human" {
		t.Errorf("CheckOptions() = %q", opts)
	}

	_, err = validate.CheckOptions("a\nb\nc\nd")
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Errorf("CheckOptions() four options error = %v, want *validate.Error", err)
	}
}

func TestAnswerIndex(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want bool
	}{
		{"2", 3, true},
		{"4", 3, false},
		{"x", 3, false},
		{"0", 3, false},
		{"-1", 3, false},
		{" 1 ", 2, true},
		{"", 2, false},
	}
	for _, tt := range tests {
		if got := validate.AnswerIndex(tt.in, tt.n); got != tt.want {
			t.Errorf("AnswerIndex(%q, %d) = %v, want %v", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestPersonName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Anna", true},
		{"Анна", true},
		{"José", true},
		{"", false},
		{"Anna1", false},
		{"Anna Maria", false},
		{strings.Repeat("a", 50), true},
		{strings.Repeat("a", 51), false},
	}
	for _, tt := range tests {
		if got := validate.PersonName(tt.in); got != tt.want {
			t.Errorf("PersonName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCheckPersonName_Normalizes(t *testing.T) {
	decomposed := "Jose\u0301"
	got, err := validate.CheckPersonName(decomposed)
	if err != nil {
		t.Fatalf("CheckPersonName() error = %v", err)
	}
	if got != "Jos\u00e9" {
		t.Errorf("CheckPersonName() = %q, want NFC form", got)
	}
}

func TestModuleCodeShape(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"first", true},
		{"Module_2", true},
		{"", false},
		{"has space", false},
		{"dash-code", false},
		{"модуль", false},
		{strings.Repeat("a", 20), true},
		{strings.Repeat("a", 21), false},
	}
	for _, tt := range tests {
		if got := validate.ModuleCodeShape(tt.in); got != tt.want {
			t.Errorf("ModuleCodeShape(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCheckGatesReturnReasons(t *testing.T) {
	gates := map[string]error{
		"text": validate.CheckText(""),
		"url":  validate.CheckURL("nope"),
		"code": validate.CheckModuleCodeShape("bad code"),
	}
	for name, err := range gates {
		var verr *validate.Error
		if !errors.As(err, &verr) || verr.Reason == "" {
			t.Errorf("%s gate error = %v, want *validate.Error with reason", name, err)
		}
	}
	if _, err := validate.CheckAnswerIndex("5", 2); err == nil {
		t.Error("CheckAnswerIndex() should reject out of range")
	}
}
