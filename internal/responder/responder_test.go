package responder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

// a Friday, so the following slots must skip the weekend
var friday = time.Date(2026, time.August, 28, 15, 0, 0, 0, time.UTC)

func TestProposeSlots_BusinessDaysOnly(t *testing.T) {
	g := NewGenerator("Sam", time.UTC)

	slots := g.ProposeSlots(friday, nil)
	require.Len(t, slots, 3)

	for _, s := range slots {
		wd := s.Start.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
		assert.GreaterOrEqual(t, s.Start.Hour(), g.BusinessStart)
		assert.Less(t, s.Start.Hour(), g.BusinessEnd)
		assert.Equal(t, g.SlotDuration, s.End.Sub(s.Start))
		assert.True(t, s.Start.After(friday))
	}

	// Friday start, so Monday, Tuesday, Wednesday.
	assert.Equal(t, time.Monday, slots[0].Start.Weekday())
	assert.Equal(t, time.Tuesday, slots[1].Start.Weekday())
	assert.Equal(t, time.Wednesday, slots[2].Start.Weekday())
}

func TestProposeSlots_Preferences(t *testing.T) {
	g := NewGenerator("Sam", time.UTC)

	morning := g.ProposeSlots(friday, []string{"Morning"})
	require.NotEmpty(t, morning)
	assert.Equal(t, g.BusinessStart, morning[0].Start.Hour())

	afternoon := g.ProposeSlots(friday, []string{"afternoon"})
	require.NotEmpty(t, afternoon)
	assert.Equal(t, 13, afternoon[0].Start.Hour())

	// Unknown preferences fall back to the default offset.
	def := g.ProposeSlots(friday, []string{"whenever"})
	require.NotEmpty(t, def)
	assert.Equal(t, g.BusinessStart+1, def[0].Start.Hour())
}

func TestCompose(t *testing.T) {
	g := NewGenerator("Sam", time.UTC)
	slots := g.ProposeSlots(friday, nil)

	rec := &models.EmailRecord{
		From:    "alice@example.com",
		Subject: "Demo of your product",
		Intent: &models.IntentAnalysis{
			ContactInfo: &models.ContactInfo{Name: "Alice"},
		},
	}

	subject, body, err := g.Compose(rec, slots)
	require.NoError(t, err)
	assert.Equal(t, "Re: Demo of your product", subject)
	assert.Contains(t, body, "Hi Alice,")
	assert.Contains(t, body, "Sam")
	for i := range slots {
		assert.Contains(t, body, slots[i].Start.Format("Monday, Jan 2"))
	}
}

func TestCompose_Fallbacks(t *testing.T) {
	g := NewGenerator("Sam", time.UTC)
	slots := g.ProposeSlots(friday, nil)

	// No contact name: greet by the sender's local part.
	rec := &models.EmailRecord{From: "bob.jones@example.com", Subject: "Re: demo"}
	subject, body, err := g.Compose(rec, slots)
	require.NoError(t, err)
	assert.Equal(t, "Re: demo", subject, "an existing Re: prefix is not doubled")
	assert.Contains(t, body, "Hi bob.jones,")

	// No subject at all.
	subject, _, err = g.Compose(&models.EmailRecord{From: "x@y.z"}, slots)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(subject, "Re: "))
}
