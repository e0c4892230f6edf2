package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"challenge-ladder/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FlowContext is the data a multi-step conversation carries between messages.
type FlowContext struct {
	MatchID    string   `json:"match_id,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// Flow is a player's conversation state. It is a value: transitions return a
// new Flow and never mutate the receiver.
type Flow struct {
	State   models.FlowState
	Context FlowContext
}

var flowTransitions = map[models.FlowState][]models.FlowState{
	models.FlowIdle:              {models.FlowIdle, models.FlowSelectingOpponent, models.FlowProposingSchedule, models.FlowReportingResult},
	models.FlowSelectingOpponent: {models.FlowIdle, models.FlowSelectingOpponent},
	models.FlowProposingSchedule: {models.FlowIdle, models.FlowProposingSchedule},
	models.FlowReportingResult:   {models.FlowIdle, models.FlowReportingResult},
}

// ErrInvalidTransition is returned when a flow is asked to move along an edge
// the state machine does not have.
var ErrInvalidTransition = errors.New("invalid conversation transition")

// CanTransition reports whether the flow may move to the given state.
func (f Flow) CanTransition(to models.FlowState) bool {
	for _, s := range flowTransitions[f.State] {
		if s == to {
			return true
		}
	}
	return false
}

func (f Flow) transition(to models.FlowState, ctx FlowContext) (Flow, error) {
	if !f.CanTransition(to) {
		return f, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.State, to)
	}
	return Flow{State: to, Context: ctx}, nil
}

// Idle ends any multi-step conversation. Always allowed.
func (f Flow) Idle() Flow {
	return Flow{State: models.FlowIdle}
}

func (f Flow) SelectingOpponent(candidates []string) (Flow, error) {
	return f.transition(models.FlowSelectingOpponent, FlowContext{Candidates: candidates})
}

func (f Flow) ProposingSchedule(matchID string) (Flow, error) {
	return f.transition(models.FlowProposingSchedule, FlowContext{MatchID: matchID})
}

func (f Flow) ReportingResult(matchID string) (Flow, error) {
	return f.transition(models.FlowReportingResult, FlowContext{MatchID: matchID})
}

// ConversationStore persists one Flow per player.
type ConversationStore struct {
	DB *gorm.DB
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{DB: db}
}

// Load returns the player's flow, IDLE if none was saved.
func (s *ConversationStore) Load(ctx context.Context, playerID string) (Flow, error) {
	var row models.ConversationState
	res := s.DB.WithContext(ctx).Where("player_id = ?", playerID).Limit(1).Find(&row)
	if res.Error != nil {
		return Flow{}, fmt.Errorf("load conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 || row.State == "" {
		return Flow{State: models.FlowIdle}, nil
	}
	f := Flow{State: row.State}
	if len(row.Context) > 0 {
		if err := json.Unmarshal(row.Context, &f.Context); err != nil {
			return Flow{State: models.FlowIdle}, nil
		}
	}
	return f, nil
}

func (s *ConversationStore) Save(ctx context.Context, playerID string, f Flow) error {
	raw, err := json.Marshal(f.Context)
	if err != nil {
		return fmt.Errorf("marshal conversation context: %w", err)
	}
	row := models.ConversationState{PlayerID: playerID, State: f.State, Context: datatypes.JSON(raw)}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "context", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}
