package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type ProposalStatus string

const (
	ProposalOpen     ProposalStatus = "OPEN"
	ProposalSelected ProposalStatus = "SELECTED"
	ProposalReplaced ProposalStatus = "REPLACED"
)

type OptionKind string

const (
	OptionExact OptionKind = "EXACT"
	OptionSlot  OptionKind = "SLOT"
)

type DayPart string

const (
	DayPartMorning   DayPart = "MORNING"
	DayPartAfternoon DayPart = "AFTERNOON"
	DayPartNight     DayPart = "NIGHT"
)

// Valid reports whether p is one of the three known day parts.
func (p DayPart) Valid() bool {
	switch p {
	case DayPartMorning, DayPartAfternoon, DayPartNight:
		return true
	}
	return false
}

// MaxScheduleOptions caps the options persisted per proposal.
const MaxScheduleOptions = 3

type ScheduleProposal struct {
	ID         string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MatchID    string         `gorm:"not null;index" json:"match_id"`
	ProposedBy string         `gorm:"not null" json:"proposed_by"`
	Status     ProposalStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	Options []ScheduleOption `json:"options,omitempty" gorm:"foreignKey:ProposalID"`

	Timestamps
}

func (p *ScheduleProposal) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ScheduleOption stores either an exact window (StartAt/EndAt) or a slot
// (Date/DayPart). Use Choice to get the typed view.
type ScheduleOption struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProposalID string     `gorm:"not null;index" json:"proposal_id"`
	Position   int        `gorm:"not null" json:"position"`
	Kind       OptionKind `gorm:"type:varchar(8);not null" json:"kind"`
	Label      string     `json:"label"`

	StartAt *time.Time `json:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty"`
	Date    *time.Time `json:"date,omitempty"`
	DayPart *DayPart   `gorm:"type:varchar(16)" json:"day_part,omitempty"`

	Timestamps
}

func (o *ScheduleOption) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// Choice returns the typed option, or nil if the row is malformed.
func (o *ScheduleOption) Choice() ScheduleChoice {
	switch o.Kind {
	case OptionExact:
		if o.StartAt != nil && o.EndAt != nil {
			return ExactChoice{Start: *o.StartAt, End: *o.EndAt}
		}
	case OptionSlot:
		if o.Date != nil && o.DayPart != nil {
			return SlotChoice{Date: *o.Date, Part: *o.DayPart}
		}
	}
	return nil
}

// ScheduleChoice is either an ExactChoice or a SlotChoice.
type ScheduleChoice interface {
	Kind() OptionKind
	Label() string
	// Apply writes the option into an unsaved ScheduleOption row.
	Apply(o *ScheduleOption)
}

type ExactChoice struct {
	Start time.Time
	End   time.Time
}

func (ExactChoice) Kind() OptionKind { return OptionExact }

func (c ExactChoice) Label() string {
	return fmt.Sprintf("%s %s-%s", c.Start.Format("2006-01-02"), c.Start.Format("15:04"), c.End.Format("15:04"))
}

func (c ExactChoice) Apply(o *ScheduleOption) {
	start, end := c.Start.UTC(), c.End.UTC()
	o.Kind = OptionExact
	o.StartAt, o.EndAt = &start, &end
	o.Date, o.DayPart = nil, nil
	o.Label = c.Label()
}

type SlotChoice struct {
	Date time.Time
	Part DayPart
}

func (SlotChoice) Kind() OptionKind { return OptionSlot }

func (c SlotChoice) Label() string {
	return fmt.Sprintf("%s %s", c.Date.Format("2006-01-02"), c.Part)
}

func (c SlotChoice) Apply(o *ScheduleOption) {
	d := DateOf(c.Date)
	part := c.Part
	o.Kind = OptionSlot
	o.Date, o.DayPart = &d, &part
	o.StartAt, o.EndAt = nil, nil
	o.Label = c.Label()
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
