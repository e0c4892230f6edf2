package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"challenge-ladder/models"
)

type IntentKind string

const (
	IntentUnknown    IntentKind = "unknown"
	IntentHelp       IntentKind = "help"
	IntentCancel     IntentKind = "cancel"
	IntentChallenge  IntentKind = "challenge"
	IntentAccept     IntentKind = "accept"
	IntentReject     IntentKind = "reject"
	IntentPropose    IntentKind = "propose"
	IntentResult     IntentKind = "result"
	IntentConfirm    IntentKind = "confirm"
	IntentDispute    IntentKind = "dispute"
	IntentRanking    IntentKind = "ranking"
	IntentNickAdd    IntentKind = "nick_add"
	IntentNickRemove IntentKind = "nick_remove"
	IntentNickList   IntentKind = "nick_list"
)

// Intent is a classified inbound text. Arg is the remainder after the command word.
type Intent struct {
	Kind IntentKind
	Arg  string
}

// IntentClassifier maps free text to an intent.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

// KeywordClassifier recognises a leading command word and a few synonyms.
type KeywordClassifier struct{}

var keywords = map[string]IntentKind{
	"help":      IntentHelp,
	"menu":      IntentHelp,
	"cancel":    IntentCancel,
	"stop":      IntentCancel,
	"challenge": IntentChallenge,
	"play":      IntentChallenge,
	"accept":    IntentAccept,
	"yes":       IntentAccept,
	"reject":    IntentReject,
	"decline":   IntentReject,
	"propose":   IntentPropose,
	"result":    IntentResult,
	"score":     IntentResult,
	"confirm":   IntentConfirm,
	"dispute":   IntentDispute,
	"ranking":   IntentRanking,
	"rank":      IntentRanking,
	"standings": IntentRanking,
}

func (KeywordClassifier) Classify(_ context.Context, text string) (Intent, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Intent{Kind: IntentUnknown}, nil
	}
	word := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), fields[0]))

	if word == "nick" || word == "alias" {
		if len(fields) == 1 {
			return Intent{Kind: IntentNickList}, nil
		}
		sub := strings.ToLower(fields[1])
		arg := strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		switch sub {
		case "add":
			return Intent{Kind: IntentNickAdd, Arg: arg}, nil
		case "remove", "rm", "del":
			return Intent{Kind: IntentNickRemove, Arg: arg}, nil
		case "list":
			return Intent{Kind: IntentNickList}, nil
		}
		return Intent{Kind: IntentNickAdd, Arg: rest}, nil
	}

	if kind, ok := keywords[word]; ok {
		return Intent{Kind: kind, Arg: rest}, nil
	}
	return Intent{Kind: IntentUnknown, Arg: strings.TrimSpace(text)}, nil
}

// DefaultMatchLength is the window given to an exact start time.
const DefaultMatchLength = 90 * time.Minute

var dayParts = map[string]models.DayPart{
	"morning":   models.DayPartMorning,
	"afternoon": models.DayPartAfternoon,
	"night":     models.DayPartNight,
	"evening":   models.DayPartNight,
}

// ParseScheduleOptions reads comma or semicolon separated options, each either
// "YYYY-MM-DD HH:MM" (exact, DefaultMatchLength long) or
// "YYYY-MM-DD morning|afternoon|night". Times are read in loc.
func ParseScheduleOptions(text string, loc *time.Location) ([]models.ScheduleChoice, error) {
	if loc == nil {
		loc = time.UTC
	}
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
	var out []models.ScheduleChoice
	for _, raw := range parts {
		p := strings.Fields(strings.TrimSpace(raw))
		if len(p) == 0 {
			continue
		}
		if len(p) != 2 {
			return nil, fmt.Errorf("option %q: want a date and a time or day part", strings.TrimSpace(raw))
		}
		day, err := time.ParseInLocation("2006-01-02", p[0], loc)
		if err != nil {
			return nil, fmt.Errorf("option %q: bad date", strings.TrimSpace(raw))
		}
		if part, ok := dayParts[strings.ToLower(p[1])]; ok {
			out = append(out, models.SlotChoice{Date: day, Part: part})
			continue
		}
		start, err := time.ParseInLocation("2006-01-02 15:04", p[0]+" "+p[1], loc)
		if err != nil {
			return nil, fmt.Errorf("option %q: bad time", strings.TrimSpace(raw))
		}
		out = append(out, models.ExactChoice{Start: start, End: start.Add(DefaultMatchLength)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no schedule options given")
	}
	return out, nil
}
