package models

import "fmt"

// BillingPeriod is the renewal period of a subscription offer.
type BillingPeriod string

const (
	PeriodWeek BillingPeriod = "week"
	PeriodYear BillingPeriod = "year"
)

const weeksPerYear = 52

// Offer is one purchasable subscription product.
type Offer struct {
	ID           string        `json:"id" validate:"required"`
	DisplayPrice string        `json:"display_price" validate:"required"`
	Price        float64       `json:"price" validate:"gte=0"`
	Currency     string        `json:"currency,omitempty"`
	Period       BillingPeriod `json:"period" validate:"required,oneof=week year"`
}

// WeeklyPrice returns the price normalised to one week.
func (o Offer) WeeklyPrice() float64 {
	if o.Period == PeriodYear {
		return o.Price / weeksPerYear
	}
	return o.Price
}

// WeeklyDisplay formats WeeklyPrice with the offer currency.
func (o Offer) WeeklyDisplay() string {
	if o.Currency == "" {
		return fmt.Sprintf("%.2f", o.WeeklyPrice())
	}
	return fmt.Sprintf("%.2f %s", o.WeeklyPrice(), o.Currency)
}
