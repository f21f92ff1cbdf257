package mailroom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leolive/onebody/consts"
)

func TestDecodePlainText(t *testing.T) {
	raw := []byte("From: Jeremy Smith <User@Foobar.COM>\r\n" +
		"To: College@example.com\r\n" +
		"Cc: jennie@foobar.com\r\n" +
		"Subject: test to college group\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Hello College Group from Jeremy.\r\n")

	email, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "user@foobar.com", email.From)
	assert.Equal(t, "Jeremy Smith", email.FromName)
	assert.Equal(t, []string{"college@example.com"}, email.To)
	assert.Equal(t, []string{"jennie@foobar.com"}, email.Cc)
	assert.Equal(t, "test to college group", email.Subject)
	assert.Contains(t, email.Body, "Hello College Group from Jeremy.")
	assert.Empty(t, email.HTMLBody)
	assert.Empty(t, email.Attachments)
}

func TestDecodeEncodedHeadersAndBody(t *testing.T) {
	raw := []byte("From: =?UTF-8?Q?J=C3=BCrgen_M=C3=BCller?= <juergen@foobar.com>\r\n" +
		"To: college@example.com\r\n" +
		"Subject: =?UTF-8?Q?Gr=C3=BC=C3=9Fe_an_alle?=\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Caf=C3=A9 am Sonntag?\r\n")

	email, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "Jürgen Müller", email.FromName)
	assert.Equal(t, "Grüße an alle", email.Subject)
	assert.Contains(t, email.Body, "Café am Sonntag?")
}

func TestDecodeMultipartAlternative(t *testing.T) {
	raw := []byte("From: user@foobar.com\r\n" +
		"To: college@example.com\r\n" +
		"Subject: both bodies\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=alt\r\n" +
		"\r\n" +
		"--alt\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--alt\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--alt--\r\n")

	email, err := Decode(raw)
	require.NoError(t, err)

	assert.Contains(t, email.Body, "plain version")
	assert.Contains(t, email.HTMLBody, "<p>html version</p>")
	// The plain part wins when both are present.
	assert.Contains(t, email.BodyText(), "plain version")
}

func TestDecodeHTMLOnlyFallsBackToTextRendering(t *testing.T) {
	raw := []byte("From: user@foobar.com\r\n" +
		"To: college@example.com\r\n" +
		"Subject: html only\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body><p>Hello from an <b>HTML</b> client.</p></body></html>\r\n")

	email, err := Decode(raw)
	require.NoError(t, err)

	assert.Empty(t, email.Body)
	assert.NotEmpty(t, email.HTMLBody)
	text := email.BodyText()
	assert.Contains(t, text, "Hello from an")
	assert.NotContains(t, text, "<b>")
}

func TestDecodeReplyHeaders(t *testing.T) {
	raw := []byte("From: jennie@foobar.com\r\n" +
		"To: noreply@example.com\r\n" +
		"Subject: re: hello\r\n" +
		"In-Reply-To: <42_abcdefgh_x3ab2cde@example.com>\r\n" +
		"References: <first@elsewhere.net> <42_abcdefgh_x3ab2cde@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"reply body\r\n")

	email, err := Decode(raw)
	require.NoError(t, err)

	require.Len(t, email.InReplyTo, 1)
	assert.Contains(t, email.InReplyTo[0], "42_abcdefgh")
	require.Len(t, email.References, 2)
	assert.Contains(t, email.References[1], "42_abcdefgh")
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode([]byte("no header separator and no colon anywhere"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, consts.ErrMalformedMessage))
}

func TestRecipientsDeduplicatesLiterals(t *testing.T) {
	email := &DecodedEmail{
		To: []string{"a@example.com", "b@example.com"},
		Cc: []string{"b@example.com", "c@example.com"},
	}
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, email.Recipients())
}
