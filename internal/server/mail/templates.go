package mail

import (
	"bytes"
	"net/url"
	"text/template"
	"time"
)

var resetTemplate = template.Must(template.New("reset").Parse(`Hello,

Someone asked to reset the password for your account.
If it was you, open the link below to choose a new password:

{{.Link}}

The link can be used once and expires at {{.ExpiresAt.UTC.Format "2006-01-02 15:04 MST"}}.
If you did not ask for this, you can ignore this message.
`))

const resetSubject = "Reset your password"

// ResetMessage renders the password-reset mail for to. The token is appended
// to baseURL as the "token" query parameter.
func ResetMessage(from, to, baseURL, token string, expiresAt time.Time) (Message, error) {
	link, err := url.Parse(baseURL)
	if err != nil {
		return Message{}, err
	}
	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()

	var body bytes.Buffer
	err = resetTemplate.Execute(&body, struct {
		Link      string
		ExpiresAt time.Time
	}{Link: link.String(), ExpiresAt: expiresAt})
	if err != nil {
		return Message{}, err
	}

	return Message{From: from, To: to, Subject: resetSubject, Body: body.String()}, nil
}
