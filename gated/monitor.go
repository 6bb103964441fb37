package main

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// AccountMonitor raises alerts for login events on monitored accounts
// (typically admins). Alerts go to the log and, when configured, to the
// webhook on a goroutine off the caller's path.
type AccountMonitor struct {
	cfg     AdminProtectionConfig
	webhook *Webhook
}

// NewAccountMonitor creates the monitor. Disabled or webhook-less
// configurations degrade to log-only or no-op behavior.
func NewAccountMonitor(cfg AdminProtectionConfig) *AccountMonitor {
	m := &AccountMonitor{cfg: cfg}
	if cfg.Webhook.Enabled {
		m.webhook = NewWebhook(cfg.Webhook.URL)
	}
	return m
}

// IsMonitored reports whether the name is on the watch list.
// Case-insensitive, matching how names are declared.
func (m *AccountMonitor) IsMonitored(name string) bool {
	if !m.cfg.Enabled {
		return false
	}
	for _, monitored := range m.cfg.MonitoredAccounts {
		if strings.EqualFold(monitored, name) {
			return true
		}
	}
	return false
}

// FailedLogin records a failed login attempt against a monitored
// account.
func (m *AccountMonitor) FailedLogin(name, ip, reason string) {
	if !m.IsMonitored(name) {
		return
	}

	log.Warn().
		Str("name", name).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Failed login attempt on monitored account")

	if m.webhook == nil || !m.cfg.NotifyFailedLogin {
		return
	}

	mentions := ""
	if m.cfg.PingOnFailedLogin && len(m.cfg.Mentions) > 0 {
		mentions = strings.Join(m.cfg.Mentions, " ")
	}

	go m.deliver("Admin Account Alert",
		"**Event:** Failed Login Attempt\n**Reason:** "+reason,
		colorRed, name, ip, mentions)
}

// SuccessfulLogin records a successful login on a monitored account.
func (m *AccountMonitor) SuccessfulLogin(name, ip string) {
	if !m.IsMonitored(name) {
		return
	}

	log.Info().
		Str("name", name).
		Str("ip", ip).
		Msg("Successful login on monitored account")

	if m.webhook == nil || !m.cfg.NotifySuccessfulLogin {
		return
	}
	go m.deliver("Admin Login", "**Event:** Successful Login", colorGreen, name, ip, "")
}

// PasswordChanged records a password change on a monitored account.
func (m *AccountMonitor) PasswordChanged(name, changedBy string) {
	if !m.IsMonitored(name) {
		return
	}

	log.Warn().
		Str("name", name).
		Str("changed_by", changedBy).
		Msg("Password changed on monitored account")

	if m.webhook == nil {
		return
	}
	go m.deliver("Password Changed",
		"**Event:** Password Changed\n**Changed By:** "+changedBy,
		colorOrange, name, "N/A", "")
}

func (m *AccountMonitor) deliver(title, description string, color int, name, ip, mentions string) {
	if err := m.webhook.SendEmbed(title, description, color, name, ip, mentions); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Failed to deliver security alert")
	}
}
