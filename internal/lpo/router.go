package lpo

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// Roles names the identity-provider roles each capability maps to.
type Roles struct {
	HOD         string
	GM          string
	Accounts    string
	Superuser   string
	Procurement string
	Store       string
}

// DefaultRoles returns the stock role names.
func DefaultRoles() Roles {
	return Roles{
		HOD:         "HOD",
		GM:          "GM",
		Accounts:    "ACCOUNTS",
		Superuser:   "SUPERUSER",
		Procurement: "PROCUREMENT",
		Store:       "STORE",
	}
}

// Policy decides approval routing. It is the single home of the GM
// threshold.
type Policy struct {
	// GMThreshold is compared against the total in BaseCurrency; GM
	// approval is required when the total is strictly greater.
	GMThreshold  decimal.Decimal
	BaseCurrency string
	// Rates converts one unit of a currency into BaseCurrency.
	Rates map[string]decimal.Decimal
	Roles Roles
}

// DefaultPolicy returns the stock routing policy.
func DefaultPolicy() Policy {
	return Policy{
		GMThreshold:  decimal.NewFromInt(100),
		BaseCurrency: "AED",
		Rates:        map[string]decimal.Decimal{},
		Roles:        DefaultRoles(),
	}
}

// NormalisedTotal converts the order total to the base currency. ok is false
// when no rate is known for the order currency.
func (p Policy) NormalisedTotal(o Order) (decimal.Decimal, bool) {
	cur := strings.ToUpper(o.Currency)
	if cur == "" || cur == strings.ToUpper(p.BaseCurrency) {
		return o.Total, true
	}
	rate, ok := p.Rates[cur]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return o.Total.Mul(rate), true
}

// RequiresGM reports whether the order value needs GM sign-off. Totals in a
// currency without a configured rate always do.
func (p Policy) RequiresGM(o Order) bool {
	total, ok := p.NormalisedTotal(o)
	if !ok {
		return true
	}
	return total.GreaterThan(p.GMThreshold)
}

// RequiredTiers returns the ordered approval chain for the order's current
// total.
func (p Policy) RequiredTiers(o Order) []Tier {
	if p.RequiresGM(o) {
		return []Tier{TierDept, TierGM, TierAcc}
	}
	return []Tier{TierDept, TierAcc}
}

// NextTier returns the first tier without an approval stamp. Submitted orders
// use the route snapshotted at submit; drafts use the live policy.
func (p Policy) NextTier(o Order) (Tier, bool) {
	route := o.Route
	if len(route) == 0 {
		route = p.RequiredTiers(o)
	}
	return nextUnstamped(route, o.Approvals)
}

func nextUnstamped(route []Tier, stamps []ApprovalStamp) (Tier, bool) {
	for _, tier := range route {
		stamped := false
		for _, s := range stamps {
			if s.Tier == tier {
				stamped = true
				break
			}
		}
		if !stamped {
			return tier, true
		}
	}
	return "", false
}

// CanAct reports whether actor may approve or reject at tier for an order
// raised by departmentID. It never fails; unknown tiers yield false.
func (p Policy) CanAct(actor shared.Actor, tier Tier, departmentID int64) bool {
	if actor.ID == 0 {
		return false
	}
	switch tier {
	case TierDept:
		if actor.HasRole(p.Roles.Superuser) {
			return true
		}
		if !actor.HasRole(p.Roles.HOD) {
			return false
		}
		return departmentID == 0 || actor.DepartmentID == departmentID
	case TierGM:
		return actor.HasRole(p.Roles.GM)
	case TierAcc:
		return actor.HasRole(p.Roles.Accounts)
	default:
		return false
	}
}
