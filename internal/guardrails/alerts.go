package guardrails

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/airblackbox/gateway/internal/pkg/logger"
)

// MailSettings configures SMTP alert delivery.
type MailSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Alerter fans a violation out to the configured channels. All sends run in
// background goroutines so the request path never waits on an alert.
type Alerter struct {
	webhookURL string
	mail       MailSettings
	log        *logger.Logger
}

// NewAlerter creates an alerter. Empty webhookURL and disabled mail settings
// result in log-only alerting.
func NewAlerter(webhookURL string, mail MailSettings, log *logger.Logger) *Alerter {
	return &Alerter{webhookURL: webhookURL, mail: mail, log: log}
}

// Notify dispatches the violation to every configured channel.
func (a *Alerter) Notify(v *Violation) {
	if v == nil {
		return
	}

	a.log.Warn("guardrail violation",
		zap.String("rule", v.Rule),
		zap.String("session_id", v.SessionID),
		zap.String("message", v.Message))

	if a.webhookURL != "" {
		go a.sendWebhook(v)
	}
	if a.mail.Enabled {
		go a.sendEmail(v)
	}
}

// slackMessage is the payload format for Slack incoming webhooks.
type slackMessage struct {
	Text string `json:"text"`
}

func (a *Alerter) sendWebhook(v *Violation) {
	payload, err := json.Marshal(slackMessage{Text: buildNarrative(v)})
	if err != nil {
		a.log.Error("alert payload marshal failed", zap.Error(err))
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(a.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		a.log.Error("alert webhook send failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.log.Warn("alert webhook rejected", zap.Int("status", resp.StatusCode))
	}
}

func (a *Alerter) sendEmail(v *Violation) {
	msg := mail.NewMsg()
	if err := msg.From(a.mail.From); err != nil {
		a.log.Error("alert email from invalid", zap.Error(err))
		return
	}
	if err := msg.To(a.mail.To); err != nil {
		a.log.Error("alert email recipient invalid", zap.Error(err))
		return
	}
	msg.Subject(fmt.Sprintf("Guardrail triggered: %s (session %s)", ruleDisplayName(v.Rule), v.SessionID))
	msg.SetBodyString(mail.TypeTextPlain, buildNarrative(v))
	msg.SetDate()
	msg.SetMessageID()

	opts := []mail.Option{
		mail.WithPort(a.mail.Port),
		mail.WithTimeout(10 * time.Second),
	}
	if a.mail.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(a.mail.Username),
			mail.WithPassword(a.mail.Password),
		)
	}

	client, err := mail.NewClient(a.mail.Host, opts...)
	if err != nil {
		a.log.Error("alert mail client failed", zap.Error(err))
		return
	}
	if err := client.DialAndSend(msg); err != nil {
		a.log.Error("alert email send failed", zap.Error(err))
	}
}

// buildNarrative renders a violation as a human-readable incident report.
func buildNarrative(v *Violation) string {
	var buf bytes.Buffer

	buf.WriteString("🚨 *AI AGENT GUARDRAIL TRIGGERED*\n\n")
	fmt.Fprintf(&buf, "*Rule:* %s\n", ruleDisplayName(v.Rule))
	fmt.Fprintf(&buf, "*Session:* %s\n", v.SessionID)
	fmt.Fprintf(&buf, "*Time:* %s\n\n", time.Now().UTC().Format(time.RFC3339))

	buf.WriteString("*What happened:*\n")
	buf.WriteString(v.Message + "\n\n")

	if len(v.Details) > 0 {
		buf.WriteString("*Details:*\n")
		for k, val := range v.Details {
			fmt.Fprintf(&buf, "• %s: %v\n", k, val)
		}
		buf.WriteString("\n")
	}

	buf.WriteString("*Action taken:*\n")
	buf.WriteString("✔ Request blocked\n")
	buf.WriteString("✔ Session flagged\n\n")

	buf.WriteString("*Recommended:* Review the agent's error handling and prompt logic.")

	return buf.String()
}

func ruleDisplayName(rule string) string {
	switch rule {
	case RuleTokenBudget:
		return "Token Budget Exceeded"
	case RulePromptLoop:
		return "Prompt Loop Detection"
	case RuleToolRetryStorm:
		return "Tool Retry Storm"
	case RuleErrorSpiral:
		return "Error Retry Spiral"
	default:
		return rule
	}
}
