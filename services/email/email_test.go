package emailsvc

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/grading"
	"github.com/normbook/normbook/core/norm"
	"github.com/normbook/normbook/tests"
)

func auditMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Head", Address: "head@school.test"}},
		Subject:      "Boundary audit: 60m run",
		TemplateName: "boundary_audit",
		TemplateData: norm.AuditReport{
			Subject: "60m run",
			Issues: []grading.Issue{
				{Kind: grading.IssueMissingGrade, Gender: grading.GenderFemale, Class: 4, Grade: 3, Detail: "grade 3 has no interval"},
			},
		},
	}
}

func TestConsoleServiceMock(t *testing.T) {
	conf := testutil.Config()
	svc := NewConsoleServiceMock(conf)
	before := len(SentMessages())

	svc.SendMessages(
		auditMessage(),
		&core.EmailMessage{To: []mail.Address{{Address: "a@school.test"}}, Subject: "plain", BodyStr: "hello"},
		&core.EmailMessage{Subject: "nobody", BodyStr: "dropped"},
	)

	sent := SentMessages()
	require.Len(t, sent, before+2)
	audit, plain := sent[before], sent[before+1]

	assert.Contains(t, audit.TextContent, "Boundary audit for 60m run")
	assert.Contains(t, audit.TextContent, "[MISSING_GRADE] FEMALE class 4: grade 3 has no interval")
	assert.Contains(t, audit.TextContent, "-- Normbook")
	assert.Contains(t, audit.HTMLContent, "<td>MISSING_GRADE</td>")

	assert.Equal(t, "hello", plain.TextContent)
	assert.Empty(t, plain.HTMLContent)
}

func TestConsoleService_Wait(t *testing.T) {
	log.SetOutput(io.Discard)
	defer log.SetOutput(os.Stderr)

	svc := NewConsoleService(testutil.Config())
	before := len(SentMessages())

	svc.SendMessages(
		auditMessage(),
		&core.EmailMessage{To: []mail.Address{{Address: "a@school.test"}}, Subject: "plain", BodyStr: "hello"},
		&core.EmailMessage{Subject: "nobody", BodyStr: "dropped"},
	)
	svc.Wait()

	sent := SentMessages()
	require.Len(t, sent, before+2)
	subjects := []string{sent[before].Subject, sent[before+1].Subject}
	assert.ElementsMatch(t, []string{"Boundary audit: 60m run", "plain"}, subjects)

	// nothing pending
	svc.Wait()
}

func TestSendgridService_Wait(t *testing.T) {
	hits := make(chan struct{}, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	logger := new(testutil.LoggerMock)
	svc := NewSendgridService(testutil.Config(), logger).(*sendgridService)
	svc.host = srv.URL

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "a@school.test"}}, Subject: "one", BodyStr: "b"},
		&core.EmailMessage{To: []mail.Address{{Address: "b@school.test"}}, Subject: "two", BodyStr: "b"},
	)
	svc.Wait()

	assert.Len(t, hits, 2)
	assert.Empty(t, logger.Entries)
}

func TestSendgridService_send(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		payload struct {
			From struct {
				Email string `json:"email"`
			} `json:"from"`
			Personalizations []struct {
				Subject string `json:"subject"`
				To      []struct {
					Email string `json:"email"`
				} `json:"to"`
			} `json:"personalizations"`
			Content []struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"content"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	conf := testutil.Config()
	conf.SendgridAPIKey = "sg-key"
	conf.DefaultFromEmail = mail.Address{Name: "Normbook", Address: "no-reply@normbook.test"}
	logger := new(testutil.LoggerMock)

	svc := NewSendgridService(conf, logger).(*sendgridService)
	svc.host = srv.URL

	msg := auditMessage()
	require.NoError(t, msg.Render(conf.AppName))
	svc.send(*msg)

	assert.Equal(t, sendgridEndpoint, gotPath)
	assert.Equal(t, "Bearer sg-key", gotAuth)
	assert.Equal(t, "no-reply@normbook.test", payload.From.Email)
	require.Len(t, payload.Personalizations, 1)
	assert.Equal(t, "[Normbook] Boundary audit: 60m run", payload.Personalizations[0].Subject)
	assert.Equal(t, "head@school.test", payload.Personalizations[0].To[0].Email)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Equal(t, "text/html", payload.Content[1].Type)
	assert.Empty(t, logger.Entries)
}

func TestSendgridService_sendReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	logger := new(testutil.LoggerMock)
	svc := NewSendgridService(testutil.Config(), logger).(*sendgridService)
	svc.host = srv.URL

	svc.sendMessage(&core.EmailMessage{To: []mail.Address{{Address: "a@school.test"}}, Subject: "s", BodyStr: "b"})
	assert.Equal(t, []string{"error"}, logger.Levels())
}
