package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"timetracker/internal/model"
	"timetracker/internal/notify"
	"timetracker/internal/repository"
)

var (
	five    = decimal.NewFromInt(5)
	hundred = decimal.NewFromInt(100)
)

// Bucket is the five-band utilization classification.
type Bucket string

const (
	BucketCritical      Bucket = "critical"
	BucketLow           Bucket = "low"
	BucketModerate      Bucket = "moderate"
	BucketOptimal       Bucket = "optimal"
	BucketOverAllocated Bucket = "over-allocated"
)

// BucketFor classifies a utilization percentage. Bands are closed-open
// except optimal, which includes both 80 and 100.
func BucketFor(utilization float64) Bucket {
	switch {
	case utilization < 25:
		return BucketCritical
	case utilization < 50:
		return BucketLow
	case utilization < 80:
		return BucketModerate
	case utilization <= 100:
		return BucketOptimal
	default:
		return BucketOverAllocated
	}
}

// UserUtilization is one user's capacity figures over a range.
type UserUtilization struct {
	UserID         uint
	Name           string
	DepartmentID   uint
	AvailableHours decimal.Decimal
	LoggedHours    decimal.Decimal
	Utilization    float64
	Bucket         Bucket
}

// DepartmentUtilization rolls member users up by summing their available
// and logged hours first, then dividing — never by averaging percentages.
type DepartmentUtilization struct {
	DepartmentID   uint
	Name           string
	AvailableHours decimal.Decimal
	LoggedHours    decimal.Decimal
	Utilization    float64
	Bucket         Bucket
}

// UtilizationSummary is the same rollup over every selected user.
type UtilizationSummary struct {
	AvailableHours decimal.Decimal
	LoggedHours    decimal.Decimal
	Utilization    float64
	Bucket         Bucket
}

// UtilizationReport is the read-side product of the capacity aggregator.
type UtilizationReport struct {
	From          string
	To            string
	PerUser       []UserUtilization
	PerDepartment []DepartmentUtilization
	Summary       UtilizationSummary
}

// CapacityService computes availability, logged hours and utilization over
// a date range. Reads only; no locks, but every report is built inside a
// single transaction so logged and available hours reflect one instant.
type CapacityService struct {
	db       *gorm.DB
	days     *repository.WorklogRepository
	users    *repository.UserRepository
	notifier notify.Notifier
}

func NewCapacityService(db *gorm.DB, days *repository.WorklogRepository, users *repository.UserRepository, notifier notify.Notifier) *CapacityService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &CapacityService{db: db, days: days, users: users, notifier: notifier}
}

// Utilization reports per-user, per-department and overall utilization for
// days in [from, to]. An empty userIDs slice means every user.
func (s *CapacityService) Utilization(ctx context.Context, from, to string, userIDs []uint) (*UtilizationReport, error) {
	fromDate, err := time.ParseInLocation(model.DayLayout, from, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("bad range start %q: %w", from, model.ErrInvalidInterval)
	}
	toDate, err := time.ParseInLocation(model.DayLayout, to, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("bad range end %q: %w", to, model.ErrInvalidInterval)
	}
	if toDate.Before(fromDate) {
		return nil, fmt.Errorf("range %s after %s: %w", from, to, model.ErrInvalidInterval)
	}

	report := &UtilizationReport{From: from, To: to}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		days := s.days.WithTx(tx)

		selected, err := users.List(ctx, userIDs)
		if err != nil {
			return err
		}
		departments, err := users.Departments(ctx)
		if err != nil {
			return err
		}
		offsByUser, err := users.ApprovedTimeOff(ctx, from, to, userIDs)
		if err != nil {
			return err
		}
		loggedByUser, err := days.LoggedHoursByUser(ctx, from, to, userIDs)
		if err != nil {
			return err
		}

		deptAvailable := make(map[uint]decimal.Decimal)
		deptLogged := make(map[uint]decimal.Decimal)
		totalAvailable, totalLogged := decimal.Zero, decimal.Zero

		for _, user := range selected {
			available := availableHours(user.WeeklyHours, fromDate, toDate, offsByUser[user.ID])
			logged := loggedByUser[user.ID]
			pct := utilizationPct(logged, available)

			report.PerUser = append(report.PerUser, UserUtilization{
				UserID:         user.ID,
				Name:           user.DisplayName(),
				DepartmentID:   user.DepartmentID,
				AvailableHours: available,
				LoggedHours:    logged,
				Utilization:    pct,
				Bucket:         BucketFor(pct),
			})

			totalAvailable = totalAvailable.Add(available)
			totalLogged = totalLogged.Add(logged)
			if user.DepartmentID != 0 {
				deptAvailable[user.DepartmentID] = deptAvailable[user.DepartmentID].Add(available)
				deptLogged[user.DepartmentID] = deptLogged[user.DepartmentID].Add(logged)
			}
		}

		for id, available := range deptAvailable {
			pct := utilizationPct(deptLogged[id], available)
			report.PerDepartment = append(report.PerDepartment, DepartmentUtilization{
				DepartmentID:   id,
				Name:           departments[id].Name,
				AvailableHours: available,
				LoggedHours:    deptLogged[id],
				Utilization:    pct,
				Bucket:         BucketFor(pct),
			})
		}

		summaryPct := utilizationPct(totalLogged, totalAvailable)
		report.Summary = UtilizationSummary{
			AvailableHours: totalAvailable,
			LoggedHours:    totalLogged,
			Utilization:    summaryPct,
			Bucket:         BucketFor(summaryPct),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// SendWeeklyDigest mails each user their utilization for the week
// containing now (Monday through Sunday). Delivery failures are logged and
// swallowed.
func (s *CapacityService) SendWeeklyDigest(ctx context.Context, now time.Time) error {
	monday := now.AddDate(0, 0, -mondayOffset(now.Weekday()))
	sunday := monday.AddDate(0, 0, 6)
	from := monday.Format(model.DayLayout)
	to := sunday.Format(model.DayLayout)

	report, err := s.Utilization(ctx, from, to, nil)
	if err != nil {
		return err
	}
	users, err := s.users.List(ctx, nil)
	if err != nil {
		return err
	}
	chats := make(map[uint]int64, len(users))
	for _, u := range users {
		chats[u.ID] = u.TelegramID
	}

	for _, u := range report.PerUser {
		chatID := chats[u.UserID]
		if chatID == 0 {
			continue
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("📊 <b>Utilization %s – %s</b>\n", from, to))
		sb.WriteString(fmt.Sprintf("%s: %sh logged of %sh available\n",
			html.EscapeString(u.Name), u.LoggedHours.StringFixed(1), u.AvailableHours.StringFixed(1)))
		sb.WriteString(fmt.Sprintf("%.0f%% — %s", u.Utilization, u.Bucket))
		if err := s.notifier.Send(ctx, chatID, sb.String()); err != nil {
			log.Printf("digest for user %d: %v", u.UserID, err)
		}
	}
	return nil
}

// availableHours sums the weekday baseline (weeklyHours / 5) over the
// range, minus approved time-off per day capped at the daily baseline.
// Time-off can zero a day out but never drive it negative.
func availableHours(weeklyHours decimal.Decimal, from, to time.Time, offs []model.TimeOff) decimal.Decimal {
	daily := weeklyHours.Div(five)
	total := decimal.Zero
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		day := d.Format(model.DayLayout)
		off := decimal.Zero
		for _, t := range offs {
			if t.Covers(day) {
				off = off.Add(t.HoursPerDay)
			}
		}
		if off.GreaterThan(daily) {
			off = daily
		}
		total = total.Add(daily.Sub(off))
	}
	return total
}

// utilizationPct is logged/available as a percentage, defined as 0 when
// nothing is available. Never NaN, never infinite.
func utilizationPct(logged, available decimal.Decimal) float64 {
	if !available.IsPositive() {
		return 0
	}
	return logged.Div(available).Mul(hundred).Round(2).InexactFloat64()
}

func mondayOffset(wd time.Weekday) int {
	if wd == time.Sunday {
		return 6
	}
	return int(wd) - 1
}
