package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Package: тариф (пакет интернета), который продают агенты.
type Package struct {
	ID        string          `json:"id"`
	Carrier   string          `json:"carrier"`
	Name      string          `json:"name"`
	Data      string          `json:"data"`
	Validity  string          `json:"validity"`
	Price     decimal.Decimal `json:"price"`
	Active    bool            `json:"active"`
	Popular   bool            `json:"popular"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type PackageInput struct {
	Carrier  string
	Name     string
	Data     string
	Validity string
	Price    decimal.Decimal
	Active   *bool
	Popular  *bool
}

type PackagePatch struct {
	Carrier  *string
	Name     *string
	Data     *string
	Validity *string
	Price    *decimal.Decimal
	Active   *bool
	Popular  *bool
}
