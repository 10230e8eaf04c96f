package entitlement

import (
	"math"
	"strings"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
)

// SelectOffer returns the offer billed per period. It matches on Period
// first and falls back to an id containing the period name.
func SelectOffer(offers []models.Offer, period models.BillingPeriod) (models.Offer, bool) {
	for _, o := range offers {
		if o.Period == period {
			return o, true
		}
	}
	for _, o := range offers {
		if strings.Contains(strings.ToLower(o.ID), string(period)) {
			return o, true
		}
	}
	return models.Offer{}, false
}

// FindOffer resolves ref as an offer id or, failing that, as a period name.
func FindOffer(offers []models.Offer, ref string) (models.Offer, bool) {
	for _, o := range offers {
		if o.ID == ref {
			return o, true
		}
	}
	switch p := models.BillingPeriod(strings.ToLower(ref)); p {
	case models.PeriodWeek, models.PeriodYear:
		return SelectOffer(offers, p)
	}
	return models.Offer{}, false
}

// Savings is the whole-percent discount of the yearly offer against paying
// weekly for a year. Zero when there is nothing to save.
func Savings(weekly, yearly models.Offer) int {
	w := weekly.WeeklyPrice()
	if w <= 0 {
		return 0
	}
	pct := (1 - yearly.WeeklyPrice()/w) * 100
	if pct <= 0 {
		return 0
	}
	return int(math.Round(pct))
}
