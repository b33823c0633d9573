// Package orderfilter — чистые функции фильтрации списка заказов.
// Семантика совпадает с SQL-фильтром pgstore.ListOrders.
package orderfilter

import (
	"strings"

	"github.com/BearBump/BundleBox/internal/models"
)

// Match проверяет все активные условия фильтра (AND).
func Match(o *models.Order, f models.OrderFilter) bool {
	if f.AgentID != "" && o.AgentID != f.AgentID {
		return false
	}
	if StatusActive(f.Status) && o.Status != f.Status {
		return false
	}
	if DateActive(f) {
		if o.CreatedAt.Before(f.From) || o.CreatedAt.After(f.To) {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		return contains(o.ID, q) || contains(o.CustomerPhone, q) || contains(o.AgentName, q) || contains(o.Product, q)
	}
	return true
}

// Apply возвращает подмножество, сохраняя исходный порядок.
func Apply(orders []*models.Order, f models.OrderFilter) []*models.Order {
	out := make([]*models.Order, 0, len(orders))
	for _, o := range orders {
		if Match(o, f) {
			out = append(out, o)
		}
	}
	return out
}

// StatusActive == false означает, что фильтр по статусу выключен.
func StatusActive(status string) bool {
	return !(status == "" || status == models.StatusAll)
}

// DateActive: диапазон учитывается, только если заданы обе границы.
func DateActive(f models.OrderFilter) bool {
	return !f.From.IsZero() && !f.To.IsZero()
}

func contains(s, lowerQ string) bool {
	return strings.Contains(strings.ToLower(s), lowerQ)
}
