package mailer

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildMIME(t *testing.T) {
	t.Parallel()

	png := bytes.Repeat([]byte{0x89, 0x50, 0x4e, 0x47}, 40)
	raw := buildMIME("Doorlist <door@example.com>", Message{
		ToEmail: "guest@example.com",
		Subject: "Your entry code",
		Text:    "Your code is ABC234.",
		HTML:    "<p>Your code is <strong>ABC234</strong>.</p>",
		Attachments: []Attachment{
			{Filename: "qr-ABC234.png", ContentType: "image/png", Content: png},
		},
	})
	body := string(raw)

	require.Contains(t, body, "From: Doorlist <door@example.com>\r\n")
	require.Contains(t, body, "To: guest@example.com\r\n")
	require.Contains(t, body, "Subject: Your entry code\r\n")
	require.Contains(t, body, "Content-Type: multipart/mixed; boundary=mixed-boundary\r\n")
	require.Contains(t, body, "Content-Type: multipart/alternative; boundary=alt-boundary\r\n")
	require.Contains(t, body, "Content-Type: text/plain; charset=utf-8\r\n\r\nYour code is ABC234.")
	require.Contains(t, body, "Content-Type: text/html; charset=utf-8\r\n\r\n<p>Your code is <strong>ABC234</strong>.</p>")
	require.Contains(t, body, `Content-Disposition: attachment; filename="qr-ABC234.png"`)
	require.Contains(t, body, "Content-Transfer-Encoding: base64\r\n")
	require.True(t, strings.HasSuffix(body, "--mixed-boundary--\r\n"), "message closes the mixed boundary")

	// The attachment must decode back to the original bytes.
	idx := strings.Index(body, "Content-Disposition: attachment")
	require.GreaterOrEqual(t, idx, 0)
	after := body[idx:]
	start := strings.Index(after, "\r\n\r\n") + 4
	end := strings.Index(after[start:], "\r\n--")
	require.Greater(t, end, 0)
	encoded := strings.ReplaceAll(after[start:start+end], "\r\n", "")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.Equal(t, png, decoded)

	for _, line := range strings.Split(body, "\r\n") {
		require.LessOrEqual(t, len(line), 76, "base64 lines wrap per RFC 2045: %q", line)
	}
}

func TestBuildMIMEWithoutAttachments(t *testing.T) {
	t.Parallel()

	raw := buildMIME("door@example.com", Message{
		ToEmail: "staff@example.com",
		Subject: "Staff invite",
		Text:    "Accept the invite.",
		HTML:    "<p>Accept the invite.</p>",
	})
	body := string(raw)

	require.NotContains(t, body, "Content-Disposition: attachment")
	require.Contains(t, body, "--alt-boundary--\r\n")
	require.True(t, strings.HasSuffix(body, "--mixed-boundary--\r\n"))
}

func TestNewFromConfigPicksTransport(t *testing.T) {
	t.Parallel()

	t.Run("api key wins", func(t *testing.T) {
		m := NewFromConfig(Config{MailerSendAPIKey: "key", SMTPHost: "mail.example.com"}, nil)
		require.IsType(t, &MailerSend{}, m)
	})

	t.Run("smtp host without key", func(t *testing.T) {
		m := NewFromConfig(Config{SMTPHost: "mail.example.com", SMTPPort: 587}, nil)
		require.IsType(t, &SMTP{}, m)
	})

	t.Run("dev sink with neither", func(t *testing.T) {
		m := NewFromConfig(Config{}, nil)
		require.IsType(t, &Dev{}, m)
	})
}
