package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingSender struct {
	fail   map[string]bool
	sent   []string
	closed bool
}

func (r *recordingSender) Send(from string, to []string, msg io.WriterTo) error {
	if r.fail[to[0]] {
		return errors.New("550 mailbox unavailable")
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	r.sent = append(r.sent, to[0]+"|"+buf.String())
	return nil
}

func (r *recordingSender) Close() error { r.closed = true; return nil }

func enabledClient(t *testing.T, s *recordingSender) *Client {
	t.Helper()
	c, err := New(Config{Enabled: true, From: "noreply@echo.health", SMTPHost: "smtp.test"})
	require.NoError(t, err)
	c.dial = func() (gomail.SendCloser, error) { return s, nil }
	return c
}

func TestBuildMessagesValidation(t *testing.T) {
	cases := map[string]struct {
		from string
		m    Message
	}{
		"no from":       {"", Message{To: []string{"a@b.c"}, Subject: "x", TextBody: "y"}},
		"no subject":    {"noreply@echo.health", Message{To: []string{"a@b.c"}, TextBody: "y"}},
		"no body":       {"noreply@echo.health", Message{To: []string{"a@b.c"}, Subject: "x"}},
		"no recipients": {"noreply@echo.health", Message{To: []string{" ", ""}, Subject: "x", TextBody: "y"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := buildMessages(tc.from, tc.m)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestSendOneCopyPerRecipient(t *testing.T) {
	s := &recordingSender{}
	c := enabledClient(t, s)

	msg := BuildDoctorRegisteredEmail(Config{Admins: []string{"ops@echo.health", " lead@echo.health "}},
		DoctorRegisteredData{DoctorName: "Dr. Wanjiru", Email: "w@example.com"})
	require.NoError(t, c.Send(context.Background(), msg))

	require.Len(t, s.sent, 2)
	assert.True(t, strings.HasPrefix(s.sent[0], "ops@echo.health|"))
	assert.True(t, strings.HasPrefix(s.sent[1], "lead@echo.health|"))
	assert.NotContains(t, s.sent[0], "lead@echo.health")
	assert.Contains(t, s.sent[0], "X-Echo-Notification: doctor_registered")
	assert.True(t, s.closed)
}

func TestSendReportsFailedRecipients(t *testing.T) {
	s := &recordingSender{fail: map[string]bool{"gone@echo.health": true}}
	c := enabledClient(t, s)

	err := c.Send(context.Background(), Message{
		Kind:     KindDoctorRegistered,
		To:       []string{"gone@echo.health", "ops@echo.health"},
		Subject:  "x",
		TextBody: "y",
	})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "gone@echo.health", de.Recipient)
	assert.Equal(t, KindDoctorRegistered, de.Kind)
	assert.Len(t, s.sent, 1)
}

func TestSendDisabled(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)

	err = c.Send(context.Background(), Message{To: []string{"a@b.c"}, Subject: "x", TextBody: "y"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNewRequiresHostWhenEnabled(t *testing.T) {
	_, err := New(Config{Enabled: true})
	require.Error(t, err)
}

func TestWithdrawalOutcomeEmail(t *testing.T) {
	cfg := Config{AppName: "Echo Health"}

	msg := BuildWithdrawalOutcomeEmail(cfg, WithdrawalOutcomeData{
		DoctorName: "Dr. <b>Amani</b>", Email: "amani@example.com",
		Amount: 500, Currency: "KES", Status: "COMPLETED", Reference: "AG_2026", TransactionID: "tx-1",
	})
	assert.Equal(t, KindWithdrawalOutcome, msg.Kind)
	assert.Equal(t, []string{"amani@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "completed")
	assert.Contains(t, msg.TextBody, "KES 500")
	assert.Contains(t, msg.TextBody, "AG_2026")
	assert.NotContains(t, msg.HTMLBody, "<b>Amani</b>")

	failed := BuildWithdrawalOutcomeEmail(cfg, WithdrawalOutcomeData{Email: "x@y.z", Status: "FAILED"})
	assert.Contains(t, failed.Subject, "failed")
}

func TestDoctorRegisteredEmailGoesToAdmins(t *testing.T) {
	cfg := Config{Admins: []string{"ops@echo.health"}}
	msg := BuildDoctorRegisteredEmail(cfg, DoctorRegisteredData{DoctorName: "Dr. Wanjiru", Email: "w@example.com"})
	assert.Equal(t, []string{"ops@echo.health"}, msg.To)
	assert.Contains(t, msg.Subject, "Dr. Wanjiru")

	approved := BuildApprovalChangedEmail(cfg, ApprovalChangedData{Email: "w@example.com", Approved: true})
	assert.Contains(t, approved.Subject, "approved")
}
