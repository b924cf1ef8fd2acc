// Package alert carries user-facing messages from the client core to
// whatever renders them.
package alert

import (
	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

type Alert struct {
	Level   Level
	Title   string
	Message string
	// Link is where a click on the alert navigates, e.g. /app/lista/4.
	Link string
	// Source identifies the notification or mutation that raised it.
	Source string
}

func (a Alert) Critical() bool { return a.Level == LevelCritical }

// Sink receives alerts.
type Sink interface {
	Alert(a Alert)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(a Alert)

func (f SinkFunc) Alert(a Alert) { f(a) }

// LogSink writes alerts to a logger.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) Alert(a Alert) {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithFields(logrus.Fields{"title": a.Title, "link": a.Link, "source": a.Source})
	switch a.Level {
	case LevelCritical, LevelError:
		entry.Error(a.Message)
	case LevelWarning:
		entry.Warn(a.Message)
	default:
		entry.Info(a.Message)
	}
}

// Discard drops every alert.
var Discard Sink = SinkFunc(func(Alert) {})
