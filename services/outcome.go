package services

import (
	"challenge-ladder/metrics"
	"challenge-ladder/models"
)

// Reason codes returned in Outcome.Reason when a business rule refuses an operation.
const (
	ReasonSelfChallenge     = "self_challenge"
	ReasonPlayerNotFound    = "player_not_found"
	ReasonPlayerInactive    = "player_inactive"
	ReasonNameInvalid       = "display_name_invalid"
	ReasonSendLimit         = "monthly_send_limit"
	ReasonAcceptLimit       = "monthly_accept_limit"
	ReasonRankGap           = "rank_gap_too_large"
	ReasonDuplicate         = "challenge_already_pending"
	ReasonChallengeNotFound = "challenge_not_found"
	ReasonNotPending        = "challenge_not_pending"
	ReasonNotChallenged     = "not_the_challenged_player"
	ReasonExpired           = "challenge_expired"
	ReasonMatchNotFound     = "match_not_found"
	ReasonMatchState        = "match_invalid_state"
	ReasonNotChallenger     = "not_the_challenger"
	ReasonNoOptions         = "no_schedule_options"
	ReasonInvalidOption     = "invalid_schedule_option"
	ReasonOptionNotFound    = "option_not_found"
	ReasonProposalClosed    = "proposal_not_open"
	ReasonInvalidScore      = "invalid_score"
	ReasonNotParticipant    = "not_a_participant"
	ReasonReportExists      = "result_already_reported"
	ReasonReportNotFound    = "report_not_found"
	ReasonReportNotPending  = "report_not_pending"
	ReasonSameAsReporter    = "reporter_cannot_confirm"
	ReasonAliasLimit        = "alias_limit_reached"
	ReasonAliasTaken        = "alias_taken"
	ReasonAliasInvalid      = "alias_invalid"
	ReasonAliasNotFound     = "alias_not_found"
	ReasonStale             = "stale"
)

// Outcome is the result of a domain operation. OK=false carries a Reason and
// is never an error; infrastructure failures come back as the error value.
type Outcome struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`

	Challenge *models.Challenge        `json:"challenge,omitempty"`
	Match     *models.Match            `json:"match,omitempty"`
	Proposal  *models.ScheduleProposal `json:"proposal,omitempty"`
	Report    *models.ResultReport     `json:"report,omitempty"`
	Dispute   *models.Dispute          `json:"dispute,omitempty"`
	Alias     *models.PlayerAlias      `json:"alias,omitempty"`
}

func ok() *Outcome { return &Outcome{OK: true} }

// refuse builds a failed Outcome and counts it under the given operation.
func refuse(op, reason string) *Outcome {
	metrics.RejectionsTotal.WithLabelValues(op, reason).Inc()
	return &Outcome{Reason: reason}
}
