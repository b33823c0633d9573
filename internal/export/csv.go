// Package export рендерит выгрузку заказов в CSV-таблицу.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/BundleBox/internal/models"
	"github.com/pkg/errors"
)

var header = []string{
	"Order ID", "Agent ID", "Agent Name", "Customer Phone", "Product",
	"Amount", "Date", "Status", "Payment Method", "Notes",
}

const dateLayout = "2006-01-02 15:04"

type CSV struct {
	Currency string
	Location *time.Location
}

func NewCSV(currency string) *CSV {
	return &CSV{Currency: currency, Location: time.UTC}
}

func (c *CSV) Render(orders []*models.Order) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	for _, o := range orders {
		if err := w.Write(c.row(o)); err != nil {
			return nil, errors.Wrapf(err, "write order %s", o.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "flush csv")
	}
	return buf.Bytes(), nil
}

func (c *CSV) FileName(at time.Time) string {
	return fmt.Sprintf("orders-export-%s.csv", at.UTC().Format("20060102-150405"))
}

func (c *CSV) row(o *models.Order) []string {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	amount := o.Amount.StringFixed(2)
	if c.Currency != "" {
		amount = c.Currency + " " + amount
	}
	return []string{
		sanitizeCell(o.ID),
		sanitizeCell(o.AgentID),
		sanitizeCell(o.AgentName),
		sanitizeCell(o.CustomerPhone),
		sanitizeCell(o.Product),
		amount,
		o.CreatedAt.In(loc).Format(dateLayout),
		strings.ToUpper(o.Status),
		sanitizeCell(o.PaymentMethod),
		sanitizeCell(o.Notes),
	}
}

// sanitizeCell экранирует апострофом ячейки, которые табличный редактор принял бы за формулу.
func sanitizeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
