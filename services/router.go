package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"challenge-ladder/metrics"
	"challenge-ladder/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IncomingEvent is a normalized inbound chat message.
type IncomingEvent struct {
	MessageID   string    `json:"message_id" validate:"required,max=128"`
	From        string    `json:"from" validate:"required"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	ReplyID     string    `json:"reply_id"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Router maps inbound events to exactly one domain operation and tells the
// sender what happened. It owns ConversationState.
type Router struct {
	DB            *gorm.DB
	Clock         clockwork.Clock
	Log           *zap.Logger
	Players       *PlayerService
	Challenges    *ChallengeService
	Matches       *MatchService
	Schedules     *ScheduleService
	Results       *ResultService
	Ranking       *RankingEngine
	Conversations *ConversationStore
	Classifier    IntentClassifier
	Notifier      Notifier
	Location      *time.Location
}

// replyCtx accumulates what the router says back to the sender.
type replyCtx struct {
	player *models.Player
	flow   Flow
	msgs   []Message
}

func (r *replyCtx) say(text string) {
	r.msgs = append(r.msgs, textMsg(r.player.Address, text))
}

func (r *replyCtx) send(m Message) {
	m.To = r.player.Address
	r.msgs = append(r.msgs, m)
}

// Handle processes one inbound event. Redelivered message ids are dropped
// silently; an infrastructure failure releases the id so a redelivery retries.
func (rt *Router) Handle(ctx context.Context, ev IncomingEvent) error {
	if ev.MessageID == "" || strings.TrimSpace(ev.From) == "" {
		return fmt.Errorf("event needs message id and sender")
	}

	fresh, err := rt.markProcessed(ctx, ev.MessageID)
	if err != nil {
		metrics.EventsIngested.WithLabelValues("failed").Inc()
		return err
	}
	if !fresh {
		metrics.EventsIngested.WithLabelValues("duplicate").Inc()
		rt.Log.Debug("duplicate event dropped", zap.String("message_id", ev.MessageID))
		return nil
	}

	if err := rt.handle(ctx, ev); err != nil {
		metrics.EventsIngested.WithLabelValues("failed").Inc()
		if uerr := rt.DB.WithContext(ctx).Where("message_id = ?", ev.MessageID).Delete(&models.ProcessedEvent{}).Error; uerr != nil {
			rt.Log.Error("release processed event", zap.String("message_id", ev.MessageID), zap.Error(uerr))
		}
		return err
	}
	metrics.EventsIngested.WithLabelValues("processed").Inc()
	return nil
}

func (rt *Router) markProcessed(ctx context.Context, messageID string) (bool, error) {
	row := models.ProcessedEvent{MessageID: messageID, ProcessedAt: rt.Clock.Now().UTC()}
	res := rt.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("record processed event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (rt *Router) handle(ctx context.Context, ev IncomingEvent) error {
	player, err := rt.Players.Resolve(ctx, ev.From, ev.DisplayName)
	if err != nil {
		return err
	}
	if err := rt.DB.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Where("message_id = ?", ev.MessageID).
		Update("player_id", player.ID).Error; err != nil {
		return fmt.Errorf("tag processed event: %w", err)
	}

	flow, err := rt.Conversations.Load(ctx, player.ID)
	if err != nil {
		return err
	}
	rc := &replyCtx{player: player, flow: flow}

	if ev.ReplyID != "" {
		err = rt.dispatchReply(ctx, rc, ev.ReplyID)
	} else {
		err = rt.dispatchText(ctx, rc, ev.Text)
	}
	if err != nil {
		return err
	}

	Deliver(ctx, rt.Notifier, rt.Log, rc.msgs)
	return rt.Conversations.Save(ctx, player.ID, rc.flow)
}

func (rt *Router) dispatchReply(ctx context.Context, rc *replyCtx, replyID string) error {
	prefix, id, ok := splitReply(replyID)
	if !ok {
		rc.say(helpText)
		return nil
	}
	me := rc.player.ID
	var out *Outcome
	var err error
	switch prefix {
	case ReplyAccept:
		out, err = rt.Challenges.AcceptChallenge(ctx, id, me)
	case ReplyReject:
		out, err = rt.Challenges.RejectChallenge(ctx, id, me)
	case ReplySelect:
		out, err = rt.Schedules.SelectOption(ctx, id, me)
	case ReplyConfirm:
		out, err = rt.Results.ConfirmResult(ctx, id, me)
	case ReplyDispute:
		out, err = rt.Results.RejectResult(ctx, id, me)
	case ReplyOpponent:
		rc.flow = rc.flow.Idle()
		out, err = rt.Challenges.CreateChallenge(ctx, me, id)
	default:
		rc.say(helpText)
		return nil
	}
	if err != nil {
		return err
	}
	rt.explain(rc, out)
	return nil
}

func (rt *Router) dispatchText(ctx context.Context, rc *replyCtx, text string) error {
	intent, err := rt.Classifier.Classify(ctx, text)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	if intent.Kind == IntentCancel {
		rc.flow = rc.flow.Idle()
		rc.say("OK, cancelled.")
		return nil
	}
	if intent.Kind == IntentUnknown && rc.flow.State != models.FlowIdle {
		return rt.continueFlow(ctx, rc, intent.Arg)
	}
	// A new command abandons whatever step the player was in.
	rc.flow = rc.flow.Idle()

	switch intent.Kind {
	case IntentChallenge:
		return rt.startChallenge(ctx, rc, intent.Arg)
	case IntentAccept, IntentReject:
		return rt.answerPending(ctx, rc, intent.Kind)
	case IntentPropose:
		return rt.propose(ctx, rc, intent.Arg)
	case IntentResult:
		return rt.report(ctx, rc, intent.Arg)
	case IntentConfirm, IntentDispute:
		return rt.answerReport(ctx, rc, intent.Kind)
	case IntentRanking:
		return rt.ranking(ctx, rc)
	case IntentNickAdd:
		out, err := rt.Players.AddAlias(ctx, rc.player.ID, intent.Arg)
		if err != nil {
			return err
		}
		if out.OK {
			rc.say(fmt.Sprintf("Nickname \"%s\" added.", out.Alias.Alias))
			return nil
		}
		rt.explain(rc, out)
		return nil
	case IntentNickRemove:
		out, err := rt.Players.RemoveAlias(ctx, rc.player.ID, intent.Arg)
		if err != nil {
			return err
		}
		if out.OK {
			rc.say("Nickname removed.")
			return nil
		}
		rt.explain(rc, out)
		return nil
	case IntentNickList:
		aliases, err := rt.Players.ListAliases(ctx, rc.player.ID)
		if err != nil {
			return err
		}
		if len(aliases) == 0 {
			rc.say("You have no nicknames. Add one with \"nick add <name>\".")
			return nil
		}
		names := make([]string, len(aliases))
		for i, a := range aliases {
			names[i] = a.Alias
		}
		rc.say("Your nicknames: " + strings.Join(names, ", "))
		return nil
	}
	rc.say(helpText)
	return nil
}

// continueFlow interprets free text as the answer to the current step.
func (rt *Router) continueFlow(ctx context.Context, rc *replyCtx, text string) error {
	switch rc.flow.State {
	case models.FlowSelectingOpponent:
		if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil && n >= 1 && n <= len(rc.flow.Context.Candidates) {
			target := rc.flow.Context.Candidates[n-1]
			rc.flow = rc.flow.Idle()
			out, err := rt.Challenges.CreateChallenge(ctx, rc.player.ID, target)
			if err != nil {
				return err
			}
			rt.explain(rc, out)
			return nil
		}
		return rt.startChallenge(ctx, rc, text)
	case models.FlowProposingSchedule:
		return rt.proposeFor(ctx, rc, rc.flow.Context.MatchID, text)
	case models.FlowReportingResult:
		return rt.reportFor(ctx, rc, rc.flow.Context.MatchID, text)
	}
	rc.flow = rc.flow.Idle()
	rc.say(helpText)
	return nil
}

func (rt *Router) startChallenge(ctx context.Context, rc *replyCtx, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		next, err := rc.flow.SelectingOpponent(nil)
		if err != nil {
			return err
		}
		rc.flow = next
		rc.say("Who do you want to challenge? Send a name, nickname or phone number.")
		return nil
	}

	found, err := rt.Players.Search(ctx, query, rc.player.ID, 10)
	if err != nil {
		return err
	}
	switch len(found) {
	case 0:
		rc.flow = rc.flow.Idle()
		rc.say(fmt.Sprintf("No player matches \"%s\".", query))
		return nil
	case 1:
		rc.flow = rc.flow.Idle()
		out, err := rt.Challenges.CreateChallenge(ctx, rc.player.ID, found[0].ID)
		if err != nil {
			return err
		}
		rt.explain(rc, out)
		return nil
	}

	ids := make([]string, len(found))
	rows := make([]ListRow, len(found))
	for i, p := range found {
		ids[i] = p.ID
		rows[i] = ListRow{ID: ReplyOpponent + p.ID, Title: fmt.Sprintf("%d. %s", i+1, p.DisplayName)}
	}
	next, err := rc.flow.SelectingOpponent(ids)
	if err != nil {
		return err
	}
	rc.flow = next
	rc.send(Message{
		Text: "Several players match. Which one?",
		List: &ListMessage{Title: "Choose opponent", Body: "Several players match. Which one?", Button: "Choose", Rows: rows},
	})
	return nil
}

func (rt *Router) answerPending(ctx context.Context, rc *replyCtx, kind IntentKind) error {
	pending, err := rt.Challenges.PendingFor(ctx, rc.player.ID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		rc.say("You have no pending challenge.")
		return nil
	}
	var out *Outcome
	if kind == IntentAccept {
		out, err = rt.Challenges.AcceptChallenge(ctx, pending[0].ID, rc.player.ID)
	} else {
		out, err = rt.Challenges.RejectChallenge(ctx, pending[0].ID, rc.player.ID)
	}
	if err != nil {
		return err
	}
	rt.explain(rc, out)
	return nil
}

func (rt *Router) propose(ctx context.Context, rc *replyCtx, arg string) error {
	m, err := rt.Matches.ActiveFor(ctx, rc.player.ID)
	if err != nil {
		return err
	}
	if m == nil {
		rc.say("You have no match waiting for a schedule.")
		return nil
	}
	if strings.TrimSpace(arg) == "" {
		next, err := rc.flow.ProposingSchedule(m.ID)
		if err != nil {
			return err
		}
		rc.flow = next
		rc.say("Send up to 3 options, e.g. \"2026-10-20 18:00, 2026-10-21 morning\".")
		return nil
	}
	return rt.proposeFor(ctx, rc, m.ID, arg)
}

func (rt *Router) proposeFor(ctx context.Context, rc *replyCtx, matchID, text string) error {
	choices, err := ParseScheduleOptions(text, rt.Location)
	if err != nil {
		rc.say(fmt.Sprintf("I could not read that (%v). Use \"YYYY-MM-DD HH:MM\" or \"YYYY-MM-DD morning|afternoon|night\".", err))
		return nil
	}
	rc.flow = rc.flow.Idle()
	out, err := rt.Schedules.ProposeSchedule(ctx, matchID, rc.player.ID, choices)
	if err != nil {
		return err
	}
	rt.explain(rc, out)
	return nil
}

func (rt *Router) report(ctx context.Context, rc *replyCtx, arg string) error {
	m, err := rt.Matches.ActiveFor(ctx, rc.player.ID)
	if err != nil {
		return err
	}
	if m == nil {
		rc.say("You have no match to report.")
		return nil
	}
	if strings.TrimSpace(arg) == "" {
		next, err := rc.flow.ReportingResult(m.ID)
		if err != nil {
			return err
		}
		rc.flow = next
		rc.say("Send the score of your win, e.g. \"6-4 6-3\".")
		return nil
	}
	return rt.reportFor(ctx, rc, m.ID, arg)
}

func (rt *Router) reportFor(ctx context.Context, rc *replyCtx, matchID, score string) error {
	out, err := rt.Results.ReportResult(ctx, matchID, rc.player.ID, score)
	if err != nil {
		return err
	}
	if out.OK || out.Reason != ReasonInvalidScore {
		rc.flow = rc.flow.Idle()
	}
	rt.explain(rc, out)
	return nil
}

func (rt *Router) answerReport(ctx context.Context, rc *replyCtx, kind IntentKind) error {
	m, err := rt.Matches.ActiveFor(ctx, rc.player.ID)
	if err != nil {
		return err
	}
	if m == nil {
		rc.say("There is no result waiting for you.")
		return nil
	}
	rep, err := rt.Results.ReportFor(ctx, m.ID)
	if err != nil {
		return err
	}
	if rep == nil {
		rc.say("There is no result waiting for you.")
		return nil
	}
	var out *Outcome
	if kind == IntentConfirm {
		out, err = rt.Results.ConfirmResult(ctx, rep.ID, rc.player.ID)
	} else {
		out, err = rt.Results.RejectResult(ctx, rep.ID, rc.player.ID)
	}
	if err != nil {
		return err
	}
	rt.explain(rc, out)
	return nil
}

func (rt *Router) ranking(ctx context.Context, rc *replyCtx) error {
	list, err := rt.Ranking.GetRankingList(ctx, nil, 10)
	if err != nil {
		return err
	}
	pos, err := rt.Ranking.GetRankPosition(ctx, nil, rc.player.ID)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("🏆 Ranking\n")
	for _, e := range list {
		fmt.Fprintf(&b, "%d. %s (%d)\n", e.Position, e.DisplayName, e.Points)
	}
	fmt.Fprintf(&b, "You are #%d.", pos)
	rc.say(b.String())
	return nil
}

// explain tells the sender about a refused operation. Successful outcomes are
// announced by the services themselves.
func (rt *Router) explain(rc *replyCtx, out *Outcome) {
	if out == nil || out.OK {
		return
	}
	if msg, ok := reasonText[out.Reason]; ok {
		rc.say(msg)
		return
	}
	rc.say("That did not work (" + out.Reason + ").")
}

var reasonText = map[string]string{
	ReasonSelfChallenge:     "You cannot challenge yourself.",
	ReasonPlayerNotFound:    "I could not find that player.",
	ReasonPlayerInactive:    "That player is not active.",
	ReasonSendLimit:         "You reached your monthly challenge limit.",
	ReasonAcceptLimit:       "You reached your monthly limit of accepted challenges.",
	ReasonRankGap:           "The ranking gap is too large for this challenge.",
	ReasonDuplicate:         "You already have a pending challenge with that player.",
	ReasonChallengeNotFound: "That challenge does not exist.",
	ReasonNotPending:        "That challenge is no longer open.",
	ReasonNotChallenged:     "Only the challenged player can answer.",
	ReasonExpired:           "That challenge has expired.",
	ReasonMatchNotFound:     "That match does not exist.",
	ReasonMatchState:        "The match is not at that step.",
	ReasonNotChallenger:     "Only the challenger proposes times.",
	ReasonNoOptions:         "Send at least one option.",
	ReasonInvalidOption:     "One of the options is not valid.",
	ReasonOptionNotFound:    "That option does not exist.",
	ReasonProposalClosed:    "Those options are no longer available.",
	ReasonInvalidScore:      "Scores look like \"6-4\" or \"6-4 3-6 7-5\".",
	ReasonNotParticipant:    "You are not playing this match.",
	ReasonReportExists:      "A result was already reported.",
	ReasonReportNotFound:    "No result was reported.",
	ReasonReportNotPending:  "That result was already answered.",
	ReasonSameAsReporter:    "Your opponent has to confirm the result.",
	ReasonAliasLimit:        "You can keep at most 3 nicknames.",
	ReasonAliasTaken:        "You already use that nickname.",
	ReasonAliasInvalid:      "That nickname is not valid.",
	ReasonAliasNotFound:     "You do not have that nickname.",
}

const helpText = `Commands:
challenge <name|phone>
accept / reject
propose <YYYY-MM-DD HH:MM>, <YYYY-MM-DD morning|afternoon|night>
result <score>, e.g. result 6-4 6-3
confirm / dispute
ranking
nick add <name> / nick remove <name>
cancel`
