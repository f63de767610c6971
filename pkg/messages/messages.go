// Package messages renders the texts the bot sends to employees.
// Rendering is pure formatting: the same order and day always produce
// the same text.
package messages

import (
	"bytes"
	"text/template"
	"time"

	"github.com/noralunch/nora/pkg/logger"
	"github.com/noralunch/nora/pkg/models"
)

const reminderTemplate = `Hi {{.Order.EmployeeName}}! 🍽
{{if .IsToday}}Today's menu:{{else}}Menu for {{.Date}}:{{end}}
{{range $i, $opt := .Order.Options}}  {{inc $i}}. {{$opt}}
{{end}}{{if .Order.Selected}}Your selection: {{.Order.Selected}}
{{else}}Reply with the option you want before the kitchen closes.
{{end}}{{if .Order.Notes}}Notes: {{.Order.Notes}}
{{end}}{{if .ExternalURL}}More details: {{.ExternalURL}}
{{end}}`

const menuChangedText = "Sorry to bother you again but today's menu has changed " +
	"and you may want to check it out 👀 maybe you like it better."

const choiceRemovedNotice = " Your previous choice is no longer available or it changed."

const menuDeletedText = "There was a mistake with the previous menu, but I'll " +
	"contact you shortly with a new one. Sorry!! 😅"

// reminderData is the context handed to the reminder template
type reminderData struct {
	Order       reminderOrder
	Date        string
	IsToday     bool
	ExternalURL string
}

type reminderOrder struct {
	EmployeeName string
	Options      []string
	Selected     string
	Notes        string
}

// Renderer renders reminder and alert texts
type Renderer struct {
	externalURL string
	tmpl        *template.Template
	logger      *logger.Logger
}

// New creates a new renderer. The external URL, when set, is appended
// to every reminder.
func New(externalURL string) *Renderer {
	tmpl := template.Must(template.New("reminder").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		Parse(reminderTemplate))

	return &Renderer{
		externalURL: externalURL,
		tmpl:        tmpl,
		logger:      logger.New("messages"),
	}
}

// Reminder renders the reminder message for an order. The menu options
// come from the order's menu; today decides the wording of the header.
func (r *Renderer) Reminder(order *models.Order, options []string, today time.Time) string {
	data := reminderData{
		Order: reminderOrder{
			EmployeeName: order.EmployeeName,
			Options:      options,
			Selected:     order.Selected,
			Notes:        order.Notes,
		},
		Date:        order.Date.Format("2006-01-02"),
		IsToday:     order.Date.Format("2006-01-02") == today.Format("2006-01-02"),
		ExternalURL: r.externalURL,
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		r.logger.Error("Failed to render reminder for order %s: %v", order.ID, err)
		return "Hi " + order.EmployeeName + "! A lunch menu is waiting for your selection."
	}
	return buf.String()
}

// MenuChanged returns the supplementary alert sent to employees that
// already made a selection when the menu changes. When choiceRemoved is
// set the text points out that their selection is gone.
func (r *Renderer) MenuChanged(choiceRemoved bool) string {
	if choiceRemoved {
		return menuChangedText + choiceRemovedNotice
	}
	return menuChangedText
}

// MenuDeleted returns the alert sent when a menu is pulled
func (r *Renderer) MenuDeleted() string {
	return menuDeletedText
}
