// Package responder builds the outbound reply for a demo request:
// proposed meeting slots and the rendered subject/body.
package responder

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

const bodyTemplate = `Hi {{.Name}},

Thanks for reaching out! I'd love to show you a demo.

Here are a few times that work on my end ({{.Timezone}}):
{{range $i, $s := .Slots}}
  {{inc $i}}. {{$s.Start.Format "Monday, Jan 2"}} from {{$s.Start.Format "3:04 PM"}} to {{$s.End.Format "3:04 PM"}}{{end}}

Just reply with whichever works best for you and I'll send over a calendar invite.

Best,
{{.SenderName}}
`

// Generator proposes meeting slots within business hours and renders
// the reply. All times are produced in Location.
type Generator struct {
	SenderName    string
	Location      *time.Location
	BusinessStart int // hour of day, inclusive
	BusinessEnd   int // hour of day, exclusive
	SlotDuration  time.Duration
	SlotCount     int

	tmpl *template.Template
}

func NewGenerator(senderName string, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	tmpl := template.Must(template.New("reply").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).Parse(bodyTemplate))

	return &Generator{
		SenderName:    senderName,
		Location:      loc,
		BusinessStart: 9,
		BusinessEnd:   17,
		SlotDuration:  30 * time.Minute,
		SlotCount:     3,
		tmpl:          tmpl,
	}
}

// ProposeSlots picks SlotCount windows on the next business days after
// the given time, one per day. A "morning" or "afternoon" preference
// from the classifier shifts the start hour within business hours.
func (g *Generator) ProposeSlots(after time.Time, preferences []string) []models.TimeSlot {
	startHour := g.BusinessStart + 1
	for _, p := range preferences {
		switch strings.ToLower(p) {
		case "morning":
			startHour = g.BusinessStart
		case "afternoon":
			startHour = 13
		}
	}
	if startHour < g.BusinessStart || startHour >= g.BusinessEnd {
		startHour = g.BusinessStart
	}

	slots := make([]models.TimeSlot, 0, g.SlotCount)
	day := after.In(g.Location)
	for len(slots) < g.SlotCount {
		day = nextBusinessDay(day)
		start := time.Date(day.Year(), day.Month(), day.Day(), startHour, 0, 0, 0, g.Location)
		slots = append(slots, models.TimeSlot{
			Start: start,
			End:   start.Add(g.SlotDuration),
		})
	}
	return slots
}

func nextBusinessDay(t time.Time) time.Time {
	t = t.AddDate(0, 0, 1)
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// Compose renders the reply for a classified demo request.
func (g *Generator) Compose(rec *models.EmailRecord, slots []models.TimeSlot) (subject, body string, err error) {
	subject = rec.Subject
	if subject == "" {
		subject = "your demo request"
	}
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	name := recipientName(rec)

	var buf bytes.Buffer
	err = g.tmpl.Execute(&buf, struct {
		Name       string
		SenderName string
		Timezone   string
		Slots      []models.TimeSlot
	}{
		Name:       name,
		SenderName: g.SenderName,
		Timezone:   g.Location.String(),
		Slots:      slots,
	})
	if err != nil {
		return "", "", fmt.Errorf("rendering reply template: %w", err)
	}
	return subject, buf.String(), nil
}

// recipientName prefers the classifier-extracted contact name, then
// the local part of the sender address.
func recipientName(rec *models.EmailRecord) string {
	if rec.Intent != nil && rec.Intent.ContactInfo != nil && rec.Intent.ContactInfo.Name != "" {
		return rec.Intent.ContactInfo.Name
	}
	if i := strings.Index(rec.From, "@"); i > 0 {
		return rec.From[:i]
	}
	return "there"
}
