package service

import (
	"context"
	"log"

	"gorm.io/gorm"

	"timetracker/internal/repository"
)

// ConsolidationReport summarizes one repair run. A run over already-clean
// data reports all zeros.
type ConsolidationReport struct {
	Groups        int
	DaysRemoved   int
	SessionsMoved int
}

// ConsolidationService repairs violations of the (user, task, day)
// uniqueness key left over from before the constraint existed. The merge
// is deterministic and idempotent, so it doubles as a repair tool: every
// run converges on the same result and a run over clean data is a no-op.
//
// This is the only code allowed to move a session between work days.
type ConsolidationService struct {
	db   *gorm.DB
	days *repository.WorklogRepository
}

func NewConsolidationService(db *gorm.DB, days *repository.WorklogRepository) *ConsolidationService {
	return &ConsolidationService{db: db, days: days}
}

// Consolidate merges every duplicated (user, task, day) group down to one
// surviving work day. Per group, inside one transaction: the survivor is
// the earliest-created day (ties broken by id), every session of the
// losers is re-parented onto it, its totals are recomputed over the full
// session set, and the losers are deleted. No session and no logged hour
// is lost. SQLite serializes write transactions, which gives the
// single-writer guarantee a live stop or manual create would otherwise
// race with.
func (s *ConsolidationService) Consolidate(ctx context.Context) (*ConsolidationReport, error) {
	keys, err := s.days.DuplicateKeys(ctx)
	if err != nil {
		return nil, err
	}

	report := &ConsolidationReport{}
	for _, key := range keys {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			days := s.days.WithTx(tx)

			group, err := days.Group(ctx, key)
			if err != nil {
				return err
			}
			if len(group) < 2 {
				// Resolved since the scan; nothing to do.
				return nil
			}

			survivor := &group[0]
			for i := 1; i < len(group); i++ {
				moved, err := days.ReparentSessions(ctx, group[i].ID, survivor.ID)
				if err != nil {
					return err
				}
				report.SessionsMoved += int(moved)
			}

			survivor.Sessions, err = days.SessionsForDay(ctx, survivor.ID)
			if err != nil {
				return err
			}
			survivor.RecomputeTotals()
			if err := days.SaveTotals(ctx, survivor); err != nil {
				return err
			}

			for i := 1; i < len(group); i++ {
				if err := days.DeleteDay(ctx, group[i].ID); err != nil {
					return err
				}
				report.DaysRemoved++
			}
			report.Groups++
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if report.Groups > 0 {
		log.Printf("consolidation: merged %d groups, removed %d days, moved %d sessions",
			report.Groups, report.DaysRemoved, report.SessionsMoved)
	}
	return report, nil
}
