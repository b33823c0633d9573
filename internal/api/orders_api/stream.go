package orders_api

import (
	"log/slog"
	"net/http"

	"github.com/BearBump/BundleBox/internal/api/httpx"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/BearBump/BundleBox/internal/orderfilter"
	"github.com/BearBump/BundleBox/internal/services/realtime"
	"github.com/starfederation/datastar-go/datastar"
)

// streamSignals: сигналы datastar, которые получает админский дашборд.
type streamSignals struct {
	Orders      []*models.Order `json:"orders"`
	ReviewCount int             `json:"reviewCount"`
	Alert       bool            `json:"alert"`
}

// alertTracker решает, показывать ли алерт "новые заказы на проверку":
// на первой доставке при наличии review-заказов и когда их становится больше.
type alertTracker struct {
	delivered  bool
	lastReview int
}

func (t *alertTracker) next(all []*models.Order, f models.OrderFilter) streamSignals {
	review := len(realtime.ReviewOrders(all))
	alert := review > 0 && (!t.delivered || review > t.lastReview)
	t.delivered = true
	t.lastReview = review
	return streamSignals{
		Orders:      orderfilter.Apply(all, f),
		ReviewCount: review,
		Alert:       alert,
	}
}

func (a *OrdersAPI) stream(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	f.AgentID = r.URL.Query().Get("agentId")

	updates := make(chan []*models.Order, 1)
	unsubscribe, err := a.hub.Subscribe(r.Context(), func(list []*models.Order) {
		select {
		case updates <- list:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- list:
		default:
		}
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	defer unsubscribe()

	sse := datastar.NewSSE(w, r)
	var tracker alertTracker
	for {
		select {
		case <-r.Context().Done():
			return
		case list := <-updates:
			if err := sse.MarshalAndPatchSignals(tracker.next(list, f)); err != nil {
				slog.Warn("order stream closed", "request_id", httpx.RequestID(r.Context()), "error", err.Error())
				return
			}
		}
	}
}
