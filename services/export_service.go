package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"challenge-ladder/metrics"
	"challenge-ladder/models"
	"challenge-ladder/utils"

	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Snapshot is one tabular export.
type Snapshot struct {
	Name    string
	Header  []string
	Rows    [][]string
	TakenAt time.Time
}

// ReportSink receives exported snapshots.
type ReportSink interface {
	Write(ctx context.Context, s Snapshot) (string, error)
}

// ObjectSink stores each snapshot as a CSV object, keyed by snapshot name and time.
type ObjectSink struct {
	Store  *utils.R2Store
	Prefix string
}

func (s *ObjectSink) Write(ctx context.Context, snap Snapshot) (string, error) {
	body, err := encodeCSV(snap)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s/%s.csv", slug.Make(s.Prefix), slug.Make(snap.Name), snap.TakenAt.UTC().Format("20060102T150405Z"))
	return s.Store.Put(ctx, key, "text/csv", body)
}

// LogSink only logs the snapshot size. Used when no bucket is configured.
type LogSink struct {
	Log *zap.Logger
}

func (s *LogSink) Write(_ context.Context, snap Snapshot) (string, error) {
	s.Log.Info("📊 snapshot", zap.String("name", snap.Name), zap.Int("rows", len(snap.Rows)))
	return "", nil
}

func encodeCSV(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(snap.Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(snap.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportService produces ranking, match and dispute snapshots.
type ExportService struct {
	DB      *gorm.DB
	Clock   clockwork.Clock
	Ranking *RankingEngine
	Sink    ReportSink
	Log     *zap.Logger
}

func NewExportService(db *gorm.DB, clock clockwork.Clock, ranking *RankingEngine, sink ReportSink, log *zap.Logger) *ExportService {
	return &ExportService{DB: db, Clock: clock, Ranking: ranking, Sink: sink, Log: log}
}

// ExportResult maps snapshot names to wherever the sink put them.
type ExportResult struct {
	Locations map[string]string `json:"locations"`
	Rows      map[string]int    `json:"rows"`
}

// Export recalculates the ranking, then writes all snapshots.
func (s *ExportService) Export(ctx context.Context) (*ExportResult, error) {
	snaps, err := s.Snapshots(ctx)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	res := &ExportResult{Locations: map[string]string{}, Rows: map[string]int{}}
	for _, snap := range snaps {
		loc, err := s.Sink.Write(ctx, snap)
		if err != nil {
			metrics.ExportsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("write %s snapshot: %w", snap.Name, err)
		}
		res.Locations[snap.Name] = loc
		res.Rows[snap.Name] = len(snap.Rows)
	}
	metrics.ExportsTotal.WithLabelValues("ok").Inc()
	s.Log.Info("📊 export done", zap.Any("rows", res.Rows))
	return res, nil
}

func (s *ExportService) Snapshots(ctx context.Context) ([]Snapshot, error) {
	now := s.Clock.Now().UTC()

	ranking, err := s.Ranking.GetRankingList(ctx, s.DB.WithContext(ctx), 0)
	if err != nil {
		return nil, err
	}
	rankRows := make([][]string, len(ranking))
	for i, e := range ranking {
		rankRows[i] = []string{strconv.Itoa(e.Position), e.PlayerID, e.DisplayName, e.Address, strconv.FormatInt(e.Points, 10)}
	}

	matchRows, err := s.matchRows(ctx)
	if err != nil {
		return nil, err
	}
	disputeRows, err := s.disputeRows(ctx)
	if err != nil {
		return nil, err
	}

	return []Snapshot{
		{Name: "ranking", Header: []string{"position", "player_id", "name", "phone", "points"}, Rows: rankRows, TakenAt: now},
		{Name: "matches", Header: []string{"match_id", "challenge_id", "status", "challenger_id", "challenged_id", "scheduled", "score", "result_status"}, Rows: matchRows, TakenAt: now},
		{Name: "disputes", Header: []string{"dispute_id", "match_id", "status", "opened_by", "resolution", "resolved_by", "resolved_at"}, Rows: disputeRows, TakenAt: now},
	}, nil
}

func (s *ExportService) matchRows(ctx context.Context) ([][]string, error) {
	var matches []models.Match
	if err := s.DB.WithContext(ctx).Preload("Challenge").Order("created_at ASC").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	var reports []models.ResultReport
	if err := s.DB.WithContext(ctx).Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	byMatch := make(map[string]models.ResultReport, len(reports))
	for _, r := range reports {
		byMatch[r.MatchID] = r
	}

	rows := make([][]string, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		var challenger, challenged string
		if m.Challenge != nil {
			challenger, challenged = m.Challenge.ChallengerID, m.Challenge.ChallengedID
		}
		scheduled := ""
		if m.ScheduledAt != nil || m.ScheduledDate != nil {
			scheduled = describeSchedule(m, time.UTC)
		}
		r := byMatch[m.ID]
		rows = append(rows, []string{m.ID, m.ChallengeID, string(m.Status), challenger, challenged, scheduled, r.Score, string(r.Status)})
	}
	return rows, nil
}

func (s *ExportService) disputeRows(ctx context.Context) ([][]string, error) {
	var disputes []models.Dispute
	if err := s.DB.WithContext(ctx).Order("created_at ASC").Find(&disputes).Error; err != nil {
		return nil, fmt.Errorf("load disputes: %w", err)
	}
	rows := make([][]string, len(disputes))
	for i, d := range disputes {
		var resolution, resolvedBy, resolvedAt string
		if d.Resolution != nil {
			resolution = string(*d.Resolution)
		}
		if d.ResolvedBy != nil {
			resolvedBy = *d.ResolvedBy
		}
		if d.ResolvedAt != nil {
			resolvedAt = d.ResolvedAt.UTC().Format(time.RFC3339)
		}
		rows[i] = []string{d.ID, d.MatchID, string(d.Status), d.OpenedBy, resolution, resolvedBy, resolvedAt}
	}
	return rows, nil
}
