package email

import (
	"fmt"
	"html"
	"strings"
)

// DoctorRegisteredData describes a new doctor application for admins.
type DoctorRegisteredData struct {
	DoctorName string
	Email      string
	Specialty  string
	ReviewURL  string
}

// ApprovalChangedData is sent to the doctor when an admin decides on the application.
type ApprovalChangedData struct {
	DoctorName string
	Email      string
	Approved   bool
	LoginURL   string
}

// WithdrawalOutcomeData reports the result of a payout to the doctor.
type WithdrawalOutcomeData struct {
	DoctorName    string
	Email         string
	Amount        int64
	Currency      string
	Status        string
	Reference     string
	TransactionID string
}

func appName(c Config) string {
	if c.AppName == "" {
		return "Echo Health"
	}
	return c.AppName
}

func greetingName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}

// layout wraps paragraphs in the shared HTML shell. Paragraphs are escaped.
func layout(heading string, paragraphs []string, app string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
`)
	fmt.Fprintf(&b, "    <h2 style=\"color: #0f766e;\">%s</h2>\n", html.EscapeString(heading))
	for _, p := range paragraphs {
		fmt.Fprintf(&b, "    <p>%s</p>\n", html.EscapeString(p))
	}
	fmt.Fprintf(&b, "    <p style=\"color: #6b7280; font-size: 14px; margin-top: 30px;\">The %s Team</p>\n", html.EscapeString(app))
	b.WriteString("</body>\n</html>")
	return b.String()
}

func text(heading string, paragraphs []string, app string) string {
	return heading + "\n\n" + strings.Join(paragraphs, "\n\n") + "\n\nThe " + app + " Team"
}

// BuildDoctorRegisteredEmail notifies admins that a doctor application awaits review.
func BuildDoctorRegisteredEmail(c Config, data DoctorRegisteredData) Message {
	app := appName(c)
	heading := "New doctor application"
	paras := []string{
		fmt.Sprintf("%s (%s) registered as a doctor and is waiting for approval.", data.DoctorName, data.Email),
	}
	if data.Specialty != "" {
		paras = append(paras, "Specialty: "+data.Specialty)
	}
	if data.ReviewURL != "" {
		paras = append(paras, "Review the application: "+data.ReviewURL)
	}

	return Message{
		Kind:     KindDoctorRegistered,
		To:       c.Admins,
		Subject:  fmt.Sprintf("[%s] New doctor application: %s", app, data.DoctorName),
		TextBody: text(heading, paras, app),
		HTMLBody: layout(heading, paras, app),
	}
}

// BuildApprovalChangedEmail tells a doctor whether their application was approved.
func BuildApprovalChangedEmail(c Config, data ApprovalChangedData) Message {
	app := appName(c)
	heading := "Hi " + greetingName(data.DoctorName) + ","

	var subject string
	var paras []string
	if data.Approved {
		subject = fmt.Sprintf("Your %s account has been approved", app)
		paras = []string{"Your doctor application has been approved. You can now sign in and accept appointments."}
		if data.LoginURL != "" {
			paras = append(paras, "Sign in: "+data.LoginURL)
		}
	} else {
		subject = fmt.Sprintf("Update on your %s application", app)
		paras = []string{"After review, your doctor application was not approved. Reply to this email if you believe this is a mistake."}
	}

	return Message{
		Kind:     KindApprovalChanged,
		To:       []string{data.Email},
		Subject:  subject,
		TextBody: text(heading, paras, app),
		HTMLBody: layout(heading, paras, app),
	}
}

// BuildWithdrawalOutcomeEmail reports a payout result to the wallet owner.
func BuildWithdrawalOutcomeEmail(c Config, data WithdrawalOutcomeData) Message {
	app := appName(c)
	heading := "Hi " + greetingName(data.DoctorName) + ","
	amount := fmt.Sprintf("%s %d", data.Currency, data.Amount)

	var subject, line string
	switch data.Status {
	case "COMPLETED":
		subject = "Withdrawal completed"
		line = fmt.Sprintf("Your withdrawal of %s has been sent. Provider reference: %s.", amount, data.Reference)
	case "FAILED":
		subject = "Withdrawal failed"
		line = fmt.Sprintf("Your withdrawal of %s was rejected by the payment provider. Our team will review it and restore the funds if needed.", amount)
	default:
		subject = "Withdrawal pending"
		line = fmt.Sprintf("Your withdrawal of %s is still being processed by the payment provider.", amount)
	}
	paras := []string{line, "Transaction: " + data.TransactionID}

	return Message{
		Kind:     KindWithdrawalOutcome,
		To:       []string{data.Email},
		Subject:  fmt.Sprintf("[%s] %s", app, subject),
		TextBody: text(heading, paras, app),
		HTMLBody: layout(heading, paras, app),
	}
}
