package enrich

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageText(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        string
	}{
		{
			name:        "html stripped to text",
			body:        "<html><body><p>Contact <b>jane@example.org</b></p></body></html>",
			contentType: "text/html; charset=utf-8",
			want:        "Contact jane@example.org",
		},
		{
			name:        "script and style removed",
			body:        "<html><head><style>p{}</style></head><body><script>var x;</script>hello</body></html>",
			contentType: "text/html",
			want:        "hello",
		},
		{
			name:        "plain text passes through",
			body:        "write to bob@example.com",
			contentType: "text/plain",
			want:        "write to bob@example.com",
		},
		{
			name:        "empty body",
			body:        "",
			contentType: "text/html",
			want:        "",
		},
		{
			name:        "whitespace collapsed",
			body:        "<p>a</p>\n\n<p>b</p>",
			contentType: "text/html",
			want:        "a b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, PageText([]byte(tt.body), tt.contentType))
		})
	}
}
