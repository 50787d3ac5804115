// Package notify holds the alert destinations: email over SMTP, a Telegram
// chat and the process log. Each type implements alert.Notifier.
package notify
