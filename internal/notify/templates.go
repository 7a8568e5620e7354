// Package notify delivers patient status messages over outbound channels.
// Delivery is asynchronous and never feeds back into status transitions.
package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"clinic-triage/internal/models"
)

// DefaultTemplates are the messages sent when a patient reaches a status.
var DefaultTemplates = map[models.Status]string{
	models.StatusCalled:   "Hello {{.Name}}, ticket {{.Ticket}} is being called. Please come to the triage desk.",
	models.StatusAttended: "Ticket {{.Ticket}}: {{.Name}} is now being attended.",
}

// Templates renders status messages.
type Templates struct {
	byStatus map[models.Status]*template.Template
}

// NewTemplates parses the given templates, keyed by target status.
func NewTemplates(src map[models.Status]string) (*Templates, error) {
	t := &Templates{byStatus: make(map[models.Status]*template.Template, len(src))}
	for status, text := range src {
		tpl, err := template.New(string(status)).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", status, err)
		}
		t.byStatus[status] = tpl
	}
	return t, nil
}

// Render returns the message for status, or ok=false when none is configured.
func (t *Templates) Render(p models.Patient, status models.Status) (string, bool, error) {
	tpl, ok := t.byStatus[status]
	if !ok {
		return "", false, nil
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, p); err != nil {
		return "", false, fmt.Errorf("render %s message: %w", status, err)
	}
	return buf.String(), true, nil
}
