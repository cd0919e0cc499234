/*
notifier.go - Structured-log notification sink

PURPOSE:
  In-process implementation of npd.Notifier. Workflow events (submitted,
  verified, rejected, finalized, sp2d recorded) are emitted as structured
  log lines; an external delivery channel can replace this without
  touching the engines.
*/
package api

import (
	"github.com/sirupsen/logrus"

	"github.com/sipd/npd-tracker/npd"
)

// LogNotifier writes workflow events to the structured log.
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(event npd.NotificationEvent) {
	n.log.WithFields(logrus.Fields{
		"event":           event.Type,
		"organization_id": string(event.OrganizationID),
		"npd_id":          string(event.DocumentID),
		"document_number": event.DocumentNumber,
		"actor":           event.ActorUserID,
		"detail":          event.Detail,
	}).Info("workflow notification")
}
