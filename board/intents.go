package board

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/events"
	"taskboard/gateway"
)

// CreateTask validates and creates a task. The task is appended to the
// store only after the remote API returned it.
func (c *Controller) CreateTask(ctx context.Context, nt domain.NewTask) (domain.Task, error) {
	if err := domain.ValidateTitle(nt.Title); err != nil {
		c.publishValidation(err)
		return domain.Task{}, err
	}
	nt.Title = strings.TrimSpace(nt.Title)

	callCtx, cancel := c.remoteContext(ctx)
	task, err := c.gateway.Create(callCtx, nt)
	cancel()
	if err != nil {
		c.logger.WithError(err).Warn("create task failed")
		c.bus.Publish(events.Error(gateway.MessageFrom(err, msgCreateFailed), gateway.IssuesFrom(err)...))
		return domain.Task{}, err
	}

	progress, appended := c.store.Append(task)
	c.logger.WithFields(log.Fields{"task": task.ID, "appended": appended}).Info("task created")
	if appended {
		c.bus.Publish(events.TaskCreated{Task: task})
		c.bus.Publish(events.ProgressChanged{Progress: progress})
	}
	c.bus.Publish(events.Success(msgCreated))
	return task, nil
}

// EditTask changes the title and description of a task. The change is
// shown immediately and reverted when the remote API rejects it.
func (c *Controller) EditTask(ctx context.Context, id, title, description string) error {
	if err := domain.ValidateTitle(title); err != nil {
		c.publishValidation(err)
		return err
	}
	title = strings.TrimSpace(title)

	var before domain.Task
	_, ok := c.store.Update(func(current []domain.Task, _ uint64) ([]domain.Task, bool) {
		for i := range current {
			if current[i].ID == id {
				before = current[i]
				current[i].Title = title
				current[i].Description = description
				return current, true
			}
		}
		return nil, false
	})
	if !ok {
		return ErrUnknownTask
	}

	callCtx, cancel := c.remoteContext(ctx)
	updated, err := c.gateway.Update(callCtx, id, domain.TaskPatch{Title: &title, Description: &description})
	cancel()
	if err != nil {
		c.store.Update(func(current []domain.Task, _ uint64) ([]domain.Task, bool) {
			for i := range current {
				if current[i].ID == id {
					current[i].Title = before.Title
					current[i].Description = before.Description
					return current, true
				}
			}
			return nil, false
		})
		c.logger.WithField("task", id).WithError(err).Warn("edit rejected; rolled back")
		c.bus.Publish(events.Error(gateway.MessageFrom(err, msgUpdateFailed), gateway.IssuesFrom(err)...))
		return err
	}

	if updated.ID != "" {
		c.store.Update(func(current []domain.Task, _ uint64) ([]domain.Task, bool) {
			for i := range current {
				if current[i].ID == id {
					current[i].Title = updated.Title
					current[i].Description = updated.Description
					if updated.Labels != nil {
						current[i].Labels = updated.Labels
					}
					return current, true
				}
			}
			return nil, false
		})
	}
	c.logger.WithField("task", id).Info("task updated")
	c.bus.Publish(events.Success(msgUpdated))
	c.bus.Publish(events.TasksChanged{})
	return nil
}

// Refresh replaces the store with the canonical list. On failure the last
// known list is kept.
func (c *Controller) Refresh(ctx context.Context) error {
	c.bus.Publish(events.LoadingChanged{Loading: true})
	defer c.bus.Publish(events.LoadingChanged{Loading: false})

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	tasks, err := c.gateway.List(callCtx)
	cancel()
	if err != nil {
		c.logger.WithError(err).Warn("refresh failed; keeping last known tasks")
		c.bus.Publish(events.Error(gateway.MessageFrom(err, msgLoadFailed), gateway.IssuesFrom(err)...))
		return err
	}

	progress := c.store.ReplaceAll(tasks)
	c.logger.WithField("tasks", len(tasks)).Debug("tasks refreshed")
	c.bus.Publish(events.ProgressChanged{Progress: progress})
	return nil
}

func (c *Controller) publishValidation(err error) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		c.bus.Publish(events.Error(vErr.Message, domain.FieldIssue{Field: vErr.Field, Message: vErr.Message}))
		return
	}
	c.bus.Publish(events.Error(err.Error()))
}
