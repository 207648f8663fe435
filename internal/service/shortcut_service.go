package service

import (
	"context"
	"fmt"
	"time"

	"timetracker/internal/model"
	"timetracker/internal/repository"
)

// ShortcutView is a shortcut plus whether its task still exists. Orphaned
// shortcuts are kept and surfaced, never silently dropped.
type ShortcutView struct {
	model.TimerShortcut
	Orphaned bool
}

// ShortcutService manages the user-owned start templates.
type ShortcutService struct {
	shortcuts *repository.ShortcutRepository
	tasks     *repository.TaskRepository

	Now func() time.Time
}

func NewShortcutService(shortcuts *repository.ShortcutRepository, tasks *repository.TaskRepository) *ShortcutService {
	return &ShortcutService{shortcuts: shortcuts, tasks: tasks, Now: time.Now}
}

// Create appends a shortcut at the end of the user's list.
func (s *ShortcutService) Create(ctx context.Context, userID, taskID uint, label string) (*model.TimerShortcut, error) {
	if taskID != 0 {
		task, err := s.tasks.FindByID(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, fmt.Errorf("task %d: %w", taskID, model.ErrNotFound)
		}
		if label == "" {
			label = task.Name
		}
	}
	maxOrder, err := s.shortcuts.MaxSortOrder(ctx, userID)
	if err != nil {
		return nil, err
	}
	shortcut := &model.TimerShortcut{
		UserID:    userID,
		TaskID:    taskID,
		Label:     label,
		SortOrder: maxOrder + 1,
	}
	if err := s.shortcuts.Create(ctx, shortcut); err != nil {
		return nil, err
	}
	return shortcut, nil
}

// ListForUser returns the user's shortcuts, pinned first, flagging the
// ones whose task has since been deleted.
func (s *ShortcutService) ListForUser(ctx context.Context, userID uint) ([]ShortcutView, error) {
	shortcuts, err := s.shortcuts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var taskIDs []uint
	for _, sc := range shortcuts {
		if sc.TaskID != 0 {
			taskIDs = append(taskIDs, sc.TaskID)
		}
	}
	existing, err := s.tasks.ExistingIDs(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	views := make([]ShortcutView, 0, len(shortcuts))
	for _, sc := range shortcuts {
		views = append(views, ShortcutView{
			TimerShortcut: sc,
			Orphaned:      sc.TaskID != 0 && !existing[sc.TaskID],
		})
	}
	return views, nil
}

// Reorder rewrites sort orders to match the given id sequence.
func (s *ShortcutService) Reorder(ctx context.Context, userID uint, orderedIDs []uint) error {
	for i, id := range orderedIDs {
		shortcut, err := s.owned(ctx, userID, id)
		if err != nil {
			return err
		}
		shortcut.SortOrder = i + 1
		if err := s.shortcuts.Save(ctx, shortcut); err != nil {
			return err
		}
	}
	return nil
}

// SetPinned pins or unpins a shortcut.
func (s *ShortcutService) SetPinned(ctx context.Context, userID, id uint, pinned bool) (*model.TimerShortcut, error) {
	shortcut, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	shortcut.Pinned = pinned
	if err := s.shortcuts.Save(ctx, shortcut); err != nil {
		return nil, err
	}
	return shortcut, nil
}

// RecordUse bumps the usage counters when a timer is started from the
// shortcut.
func (s *ShortcutService) RecordUse(ctx context.Context, userID, id uint) (*model.TimerShortcut, error) {
	shortcut, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	shortcut.UseCount++
	shortcut.LastUsedAt = &now
	if err := s.shortcuts.Save(ctx, shortcut); err != nil {
		return nil, err
	}
	return shortcut, nil
}

// Delete removes a shortcut.
func (s *ShortcutService) Delete(ctx context.Context, userID, id uint) error {
	shortcut, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	return s.shortcuts.Delete(ctx, shortcut.ID)
}

func (s *ShortcutService) owned(ctx context.Context, userID, id uint) (*model.TimerShortcut, error) {
	shortcut, err := s.shortcuts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if shortcut == nil {
		return nil, fmt.Errorf("shortcut %d: %w", id, model.ErrNotFound)
	}
	if shortcut.UserID != userID {
		return nil, fmt.Errorf("shortcut %d belongs to user %d: %w", id, shortcut.UserID, model.ErrNotPermitted)
	}
	return shortcut, nil
}
