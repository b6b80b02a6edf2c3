package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	testutil "github.com/cwarwicker/elbp/tests"
)

func TestConsoleService_SendMessages(t *testing.T) {
	svc := NewConsoleService(core.NewTestConfig(t.TempDir()), &testutil.Logger{})
	var out bytes.Buffer
	svc.SetOutput(&out)

	messages := []*core.EmailMessage{
		{To: []mail.Address{{Address: "tutor@example.com"}}, Subject: "Attendance below target", BodyStr: "Student 4 is at 70%"},
		{To: []mail.Address{{Address: "head@example.com"}}, Subject: "Overdue targets", BodyStr: "Student 9 has 2 overdue targets"},
		{Subject: "nobody", BodyStr: "dropped"},
		{To: []mail.Address{{Address: "empty@example.com"}}, Subject: "no content"},
	}
	svc.SendMessages(messages...)

	sent := svc.Sent()
	require.Len(t, sent, 2)
	subjects := []string{sent[0].Subject, sent[1].Subject}
	assert.ElementsMatch(t, []string{"Attendance below target", "Overdue targets"}, subjects)
	assert.Contains(t, out.String(), "Subject: [ELBP] Attendance below target")
	assert.Contains(t, out.String(), "To: <tutor@example.com>")
	assert.NotContains(t, out.String(), "dropped")
}

func TestConsoleService_Attachments(t *testing.T) {
	svc := NewConsoleService(core.NewTestConfig(t.TempDir()), &testutil.Logger{})
	var out bytes.Buffer
	svc.SetOutput(&out)

	msg := &core.EmailMessage{To: []mail.Address{{Address: "a@example.com"}}, Subject: "export", BodyStr: "see attached"}
	require.NoError(t, msg.Attach(strings.NewReader("Student_ID,Tutor_ID,Tutor_Name\n"), "tutors.csv", "text/csv"))
	require.NoError(t, svc.SendMessage(msg))

	assert.Contains(t, out.String(), "multipart/mixed")
	assert.Contains(t, out.String(), "filename=tutors.csv")
}

func TestFanOut_LogsFailures(t *testing.T) {
	logger := &testutil.Logger{}
	messages := []*core.EmailMessage{{Subject: "ok"}, {Subject: "boom"}, {Subject: "ok too"}}
	fanOut(func(msg *core.EmailMessage) error {
		if msg.Subject == "boom" {
			return errors.New("smtp down")
		}
		return nil
	}, logger, messages)

	require.Len(t, logger.Messages, 1)
	assert.Contains(t, logger.Messages[0], `"boom"`)
}

func TestSendgridService_Prepare(t *testing.T) {
	svc := NewSendgridService(core.NewTestConfig(t.TempDir()), &testutil.Logger{})
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Tutor", Address: "tutor@example.com"}},
		Cc:          []mail.Address{{Address: "cc@example.com"}},
		Subject:     "Tutorial added",
		TextContent: "text",
	})

	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[ELBP] Tutorial added", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "tutor@example.com", p.To[0].Address)
	assert.Len(t, p.CC, 1)
	require.Len(t, m.Content, 1, "no html part without html content")
	assert.Equal(t, "noreply@localhost", m.From.Address)
}
