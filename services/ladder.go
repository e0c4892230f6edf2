package services

import (
	"time"

	"challenge-ladder/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Rules are the tunable ladder parameters.
type Rules struct {
	ChallengeTTL     time.Duration
	ScheduleTTL      time.Duration
	MaxRankGap       int
	MonthlySendCap   int
	MonthlyAcceptCap int
	Location         *time.Location
}

// DefaultRules are the standard ladder parameters: 48h to answer or schedule,
// a 10-position gap, no monthly caps.
var DefaultRules = Rules{
	ChallengeTTL: 48 * time.Hour,
	ScheduleTTL:  48 * time.Hour,
	MaxRankGap:   10,
	Location:     time.UTC,
}

// Ladder wires every service of the coordinator together.
type Ladder struct {
	Deps
	Players       *PlayerService
	Challenges    *ChallengeService
	Matches       *MatchService
	Schedules     *ScheduleService
	Results       *ResultService
	Conversations *ConversationStore
	Router        *Router
}

// NewLadder builds the services and registers the expiration handlers on tasks.
func NewLadder(db *gorm.DB, clock clockwork.Clock, log *zap.Logger, tasks *ExpirationScheduler, notifier Notifier, cache RankCache, classifier IntentClassifier, rules Rules) *Ladder {
	loc := rules.Location
	if loc == nil {
		loc = time.UTC
	}
	audit := NewAuditTrail(db, clock)
	deps := Deps{
		DB:       db,
		Clock:    clock,
		Log:      log,
		Audit:    audit,
		Ranking:  NewRankingEngine(db, clock, cache, log),
		Limits:   NewRateLimiter(clock, rules.MonthlySendCap, rules.MonthlyAcceptCap),
		Tasks:    tasks,
		Notifier: notifier,
		Location: loc,
	}
	if classifier == nil {
		classifier = KeywordClassifier{}
	}

	l := &Ladder{Deps: deps}
	l.Players = NewPlayerService(db, clock, audit, deps.Ranking, log)
	l.Matches = NewMatchService(deps, rules.ScheduleTTL)
	l.Challenges = NewChallengeService(deps, l.Matches, rules.ChallengeTTL, rules.MaxRankGap)
	l.Schedules = NewScheduleService(deps)
	l.Results = NewResultService(deps)
	l.Conversations = NewConversationStore(db)
	l.Router = &Router{
		DB:            db,
		Clock:         clock,
		Log:           log,
		Players:       l.Players,
		Challenges:    l.Challenges,
		Matches:       l.Matches,
		Schedules:     l.Schedules,
		Results:       l.Results,
		Ranking:       deps.Ranking,
		Conversations: l.Conversations,
		Classifier:    classifier,
		Notifier:      notifier,
		Location:      loc,
	}

	tasks.Register(models.TaskExpireChallenge, l.Challenges.HandleExpiry)
	tasks.Register(models.TaskExpireSchedule, l.Matches.HandleScheduleExpiry)
	return l
}
