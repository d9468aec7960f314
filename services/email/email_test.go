package emailsvc

import (
	"bytes"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kalamu/core"
)

var testConf = &core.Config{
	AppName:          "Kalamu",
	TestMode:         true,
	FrontendBaseURL:  "https://app.kalamu.test/",
	DefaultFromEmail: mail.Address{Name: "Kalamu", Address: "noreply@kalamu.test"},
}

func TestConsoleServiceMock(t *testing.T) {
	core.ParseEmailTemplates(testConf, core.NopLogger{})
	svc, outbox := NewConsoleServiceMock(core.NopLogger{}, testConf)

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Jane", Address: "jane@example.com"}},
			Subject:      "Your notes are ready",
			TemplateName: "lecture_ready",
			TemplateData: map[string]interface{}{"Name": "Jane", "Title": "Week 1", "PageCount": 12, "NoteID": "n1"},
		},
		&core.EmailMessage{Subject: "nobody to send to", BodyStr: "hi"},
	)

	require.Len(t, outbox.Messages(), 1)
	msg, ok := outbox.Last("JANE@example.com")
	require.True(t, ok)
	assert.Contains(t, msg.TextContent, "Week 1")
	assert.Contains(t, msg.HTMLContent, "https://app.kalamu.test/notes/n1")

	_, ok = outbox.Last("john@example.com")
	assert.False(t, ok)
}

func TestConsoleServiceWrite(t *testing.T) {
	var buf bytes.Buffer
	svc := &consoleService{from: testConf.DefaultFromEmail, subjPrefix: "[Kalamu] ", out: &buf, outbox: new(Outbox), logger: core.NopLogger{}, sync: true}

	msg := &core.EmailMessage{To: []mail.Address{{Address: "a@b.co"}}, Subject: "Hello", BodyStr: "plain body"}
	require.NoError(t, msg.Attach(bytes.NewBufferString("%PDF-1.4"), "notes.pdf", "application/pdf"))
	svc.SendMessages(msg)

	out := buf.String()
	assert.Contains(t, out, "Subject: [Kalamu] Hello")
	assert.Contains(t, out, "multipart/mixed")
	assert.Contains(t, out, "plain body")
	assert.Contains(t, out, "attachment; filename=notes.pdf")
}

func TestSendgridPrepare(t *testing.T) {
	svc := NewSendgridService(core.NopLogger{}, testConf).(*sendgridService)
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Jane", Address: "jane@example.com"}},
		Subject:     "Reset",
		TextContent: "text",
	})

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Kalamu] Reset", m.Personalizations[0].Subject)
	assert.Equal(t, "jane@example.com", m.Personalizations[0].To[0].Address)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
}
