// Package lifecycle описывает граф допустимых переходов статуса заказа.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
)

var transitions = map[string][]string{
	models.StatusReview:    {models.StatusPending, models.StatusCancelled, models.StatusFailed},
	models.StatusPending:   {models.StatusCompleted, models.StatusCancelled, models.StatusFailed},
	models.StatusFailed:    {models.StatusPending},
	models.StatusCompleted: nil,
	models.StatusCancelled: nil,
}

// Valid сообщает, является ли строка статусом заказа.
func Valid(status string) bool {
	_, ok := transitions[status]
	return ok
}

// Allowed возвращает статусы, достижимые из from за один шаг.
func Allowed(from string) []string {
	return append([]string(nil), transitions[from]...)
}

func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func Terminal(status string) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}

// Transition меняет статус заказа и дописывает запись в таймлайн.
// Повторная установка текущего статуса ничего не делает и возвращает nil-запись.
func Transition(o *models.Order, target string, now time.Time) (*models.TimelineEntry, error) {
	if !Valid(target) {
		return nil, apperr.Validation(fmt.Sprintf("Unknown status %q", target), "status")
	}
	if o.Status == target {
		return nil, nil
	}
	if !CanTransition(o.Status, target) {
		return nil, &apperr.TransitionError{From: o.Status, To: target}
	}

	e := models.TimelineEntry{
		Status:      target,
		Description: fmt.Sprintf("Order status updated to %s", target),
		At:          now.UTC(),
	}
	o.Status = target
	o.Timeline = append(o.Timeline, e)
	return &e, nil
}

// ForceExport — административный перевод в pending при выгрузке, в обход графа.
func ForceExport(o *models.Order, now time.Time) models.TimelineEntry {
	e := models.TimelineEntry{
		Status:      models.TimelineExported,
		Description: "Order exported and status changed to pending",
		At:          now.UTC(),
	}
	o.Status = models.StatusPending
	o.Exported = true
	o.Timeline = append(o.Timeline, e)
	return e
}

// Created строит первую запись таймлайна любого заказа.
func Created(now time.Time) models.TimelineEntry {
	return models.TimelineEntry{
		Status:      models.TimelineCreated,
		Description: "Order created",
		At:          now.UTC(),
	}
}
