package worker_test

import (
	"reflect"
	"testing"

	"github.com/forqio/forq/worker"
)

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"simple", "echo hello", []string{"echo", "hello"}},
		{"multiple spaces", "echo   hello    world", []string{"echo", "hello", "world"}},
		{"tabs and newlines", "echo\thello\nworld", []string{"echo", "hello", "world"}},
		{"double quotes", `echo "hello world"`, []string{"echo", "hello world"}},
		{"single quotes", `echo 'hello world'`, []string{"echo", "hello world"}},
		{"quotes inside word", `echo he"llo wor"ld`, []string{"echo", "hello world"}},
		{"empty quoted arg", `printf ""`, []string{"printf", ""}},
		{"escape space", `echo hello\ world`, []string{"echo", "hello world"}},
		{"escape inside double quotes", `echo "a\"b"`, []string{"echo", `a"b`}},
		{"backslash literal in single quotes", `echo 'a\b'`, []string{"echo", `a\b`}},
		{"shell passthrough", `sh -c "exit 1"`, []string{"sh", "-c", "exit 1"}},
		{"single arg", "true", []string{"true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := worker.SplitCommand(tt.command)
			if err != nil {
				t.Fatalf("SplitCommand(%q) error: %v", tt.command, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitCommand(%q) = %q, want %q", tt.command, got, tt.want)
			}
		})
	}
}

func TestSplitCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
	}{
		{"empty", ""},
		{"only whitespace", "   \t  "},
		{"unclosed double quote", `echo "oops`},
		{"unclosed single quote", `echo 'oops`},
		{"trailing escape", `echo oops\`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := worker.SplitCommand(tt.command); err == nil {
				t.Errorf("SplitCommand(%q) succeeded, want error", tt.command)
			}
		})
	}
}
