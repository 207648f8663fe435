package service

import (
	"context"
	"fmt"
	"html"
	"log"

	"gorm.io/gorm"

	"timetracker/internal/model"
	"timetracker/internal/notify"
	"timetracker/internal/repository"
)

// TaskService owns the one task operation this subsystem cares about:
// deletion, which must not leave a running timer pointing at a dead task.
type TaskService struct {
	db        *gorm.DB
	tasks     *repository.TaskRepository
	timers    *repository.TimerRepository
	shortcuts *repository.ShortcutRepository
	users     *repository.UserRepository
	notifier  notify.Notifier
}

func NewTaskService(
	db *gorm.DB,
	tasks *repository.TaskRepository,
	timers *repository.TimerRepository,
	shortcuts *repository.ShortcutRepository,
	users *repository.UserRepository,
	notifier notify.Notifier,
) *TaskService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &TaskService{db: db, tasks: tasks, timers: timers, shortcuts: shortcuts, users: users, notifier: notifier}
}

// DeleteTask removes a task. Any timer currently running against it is
// discarded inside the same transaction — a safety rule, not a cascade:
// a dangling timer would otherwise stop into a day for a task that no
// longer exists. Shortcuts referencing the task are NOT deleted; they
// become orphaned and their owners are told. All notifications are
// fire-and-forget after commit.
func (s *TaskService) DeleteTask(ctx context.Context, taskID uint) error {
	var (
		task            *model.Task
		discardedOwners []uint
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tasks := s.tasks.WithTx(tx)
		timers := s.timers.WithTx(tx)

		var err error
		task, err = tasks.FindByID(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("task %d: %w", taskID, model.ErrNotFound)
		}

		running, err := timers.ListByTask(ctx, taskID)
		if err != nil {
			return err
		}
		for _, timer := range running {
			if _, err := timers.DeleteByUser(ctx, timer.UserID); err != nil {
				return err
			}
			discardedOwners = append(discardedOwners, timer.UserID)
		}

		return tasks.Delete(ctx, taskID)
	})
	if err != nil {
		return err
	}

	name := html.EscapeString(task.Name)
	for _, userID := range discardedOwners {
		s.notifyUser(ctx, userID, fmt.Sprintf(
			"⏱ Your running timer was discarded because its task «%s» was deleted.", name))
	}

	orphaned, err := s.shortcuts.ListByTask(ctx, taskID)
	if err != nil {
		log.Printf("list orphaned shortcuts for task %d: %v", taskID, err)
		return nil
	}
	for _, shortcut := range orphaned {
		s.notifyUser(ctx, shortcut.UserID, fmt.Sprintf(
			"🔖 Your shortcut «%s» lost its task «%s»; update or delete it.",
			html.EscapeString(shortcut.Label), name))
	}
	return nil
}

func (s *TaskService) notifyUser(ctx context.Context, userID uint, text string) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil || user == nil || user.TelegramID == 0 {
		return
	}
	if err := s.notifier.Send(ctx, user.TelegramID, text); err != nil {
		log.Printf("notify user %d: %v", userID, err)
	}
}
