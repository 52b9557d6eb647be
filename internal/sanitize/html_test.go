package sanitize

import (
	"strings"
	"testing"
)

func TestHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "script stripped",
			in:   `<p>hi</p><script>alert("x")</script>`,
			want: "<p>hi</p>",
		},
		{
			name: "event handler stripped",
			in:   `<a href="https://example.org" onclick="steal()">link</a>`,
			want: `<a href="https://example.org" rel="nofollow">link</a>`,
		},
		{
			name: "formatting kept",
			in:   "<b>bold</b> and <i>italic</i>",
			want: "<b>bold</b> and <i>italic</i>",
		},
		{
			name: "plain text untouched",
			in:   "just text",
			want: "just text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTML(tt.in); got != tt.want {
				t.Errorf("HTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHTMLStripsJavascriptURLs(t *testing.T) {
	got := HTML(`<a href="javascript:alert(1)">x</a>`)
	if strings.Contains(got, "javascript:") {
		t.Errorf("javascript URL survived: %q", got)
	}
}

func TestHTMLPtr(t *testing.T) {
	if HTMLPtr(nil) != nil {
		t.Error("nil body should stay nil")
	}
	dirty := `<p>ok</p><script>x</script>`
	got := HTMLPtr(&dirty)
	if got == nil || *got != "<p>ok</p>" {
		t.Errorf("HTMLPtr() = %v", got)
	}
}
