package vfs

import (
	log "github.com/sirupsen/logrus"
)

// Severity classifies a notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NotificationSink receives fire-and-forget user-facing messages
type NotificationSink interface {
	Notify(message string, severity Severity)
}

// LogSink forwards notifications to logrus
type LogSink struct{}

// Notify logs message at the level matching severity
func (LogSink) Notify(message string, severity Severity) {
	switch severity {
	case SeverityError:
		log.Errorf("[KFS] %s", message)
	case SeverityWarning:
		log.Warnf("[KFS] %s", message)
	default:
		log.Infof("[KFS] %s", message)
	}
}

// NopSink drops every notification
type NopSink struct{}

func (NopSink) Notify(string, Severity) {}

// SinkFunc adapts a function to NotificationSink
type SinkFunc func(message string, severity Severity)

func (f SinkFunc) Notify(message string, severity Severity) { f(message, severity) }

// ChangeAction names the kind of mutation reported to a ChangeListener
type ChangeAction string

const (
	ActionWrite  ChangeAction = "write"
	ActionMkdir  ChangeAction = "mkdir"
	ActionRemove ChangeAction = "remove"
	ActionMount  ChangeAction = "mount"
)

// ChangeEvent describes one successful mutation
type ChangeEvent struct {
	Path   string       `json:"path"`
	Action ChangeAction `json:"action"`
}

// ChangeListener is called synchronously after each successful mutation
type ChangeListener func(ev ChangeEvent)
