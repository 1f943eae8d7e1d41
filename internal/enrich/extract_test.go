package enrich

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractEmails(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain address",
			text: "reach me at jane@example.org today",
			want: []string{"jane@example.org"},
		},
		{
			name: "domain lowercased local preserved",
			text: "Jane.Doe@EXAMPLE.ORG",
			want: []string{"Jane.Doe@example.org"},
		},
		{
			name: "duplicates collapse keeping first local part",
			text: "Jane@example.org and jane@EXAMPLE.org",
			want: []string{"Jane@example.org"},
		},
		{
			name: "asset filenames filtered",
			text: "srcset hero@2x.png and real bob@example.com",
			want: []string{"bob@example.com"},
		},
		{
			name: "obfuscated forms not matched",
			text: "jane at example dot org",
			want: nil,
		},
		{
			name: "order stable",
			text: "b@x.org then a@y.org",
			want: []string{"b@x.org", "a@y.org"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExtractEmails(tt.text))
		})
	}
}

func TestEmailSetCapAndDedupe(t *testing.T) {
	set := NewEmailSet(2)

	require.True(t, set.Add(EmailCandidate{Email: "a@example.org"}))
	require.False(t, set.Add(EmailCandidate{Email: "a@EXAMPLE.org"}), "domain-case duplicate")
	require.False(t, set.Truncated(), "duplicate rejection is not truncation")

	require.True(t, set.Add(EmailCandidate{Email: "b@example.org"}))
	require.True(t, set.Full())

	require.False(t, set.Add(EmailCandidate{Email: "c@example.org"}))
	require.True(t, set.Truncated())

	emails := set.Emails()
	require.Len(t, emails, 2)
	require.Equal(t, "a@example.org", emails[0].Email)
	require.Equal(t, "b@example.org", emails[1].Email)
}
