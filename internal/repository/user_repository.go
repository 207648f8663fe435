package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"timetracker/internal/model"
)

// UserRepository reads the user and department directory and the approved
// time-off needed by capacity math. The platform owns user CRUD; this
// subsystem only consumes the records.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// FindByID returns the user, or nil when absent.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
}

// List returns the given users, or every user when ids is empty.
func (r *UserRepository) List(ctx context.Context, ids []uint) ([]model.User, error) {
	q := r.db.WithContext(ctx).Order("id ASC")
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	var users []model.User
	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Departments returns all departments keyed by id.
func (r *UserRepository) Departments(ctx context.Context) (map[uint]model.Department, error) {
	var departments []model.Department
	if err := r.db.WithContext(ctx).Find(&departments).Error; err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	byID := make(map[uint]model.Department, len(departments))
	for _, d := range departments {
		byID[d.ID] = d
	}
	return byID, nil
}

// ApprovedTimeOff returns approved absences overlapping [from, to], keyed
// by user.
func (r *UserRepository) ApprovedTimeOff(ctx context.Context, from, to string, userIDs []uint) (map[uint][]model.TimeOff, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND start_day <= ? AND end_day >= ?", model.TimeOffApproved, to, from)
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}
	var offs []model.TimeOff
	if err := q.Find(&offs).Error; err != nil {
		return nil, fmt.Errorf("list time off: %w", err)
	}
	byUser := make(map[uint][]model.TimeOff)
	for _, off := range offs {
		byUser[off.UserID] = append(byUser[off.UserID], off)
	}
	return byUser, nil
}
