package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/munesh14/first-exchange-hub-sub000/internal/lpo"
)

// RouteOptions defines the flags of the policy route command.
type RouteOptions struct {
	Total      string
	Currency   string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RouteSummary is the JSON output of the route command.
type RouteSummary struct {
	Total      string     `json:"total"`
	Currency   string     `json:"currency"`
	Normalised string     `json:"normalised,omitempty"`
	RequiresGM bool       `json:"requires_gm"`
	Tiers      []lpo.Tier `json:"tiers"`
}

// RouteCommand prints the approval chain the policy assigns to an order
// total. It lets operators check LPO_GM_THRESHOLD and LPO_FX_RATES before a
// rollout.
func RouteCommand(policy lpo.Policy, opts RouteOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	total, err := decimal.NewFromString(strings.TrimSpace(opts.Total))
	if err != nil || total.IsNegative() {
		_, _ = fmt.Fprintf(stderr, "policy route: invalid --total %q\n", opts.Total)
		return 1
	}
	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = policy.BaseCurrency
	}
	order := lpo.Order{Total: total, Currency: currency}
	summary := RouteSummary{
		Total:      total.String(),
		Currency:   currency,
		RequiresGM: policy.RequiresGM(order),
		Tiers:      policy.RequiredTiers(order),
	}
	if normalised, ok := policy.NormalisedTotal(order); ok {
		summary.Normalised = normalised.StringFixed(2) + " " + policy.BaseCurrency
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "policy route: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	tiers := make([]string, 0, len(summary.Tiers))
	for _, t := range summary.Tiers {
		tiers = append(tiers, string(t))
	}
	normalised := summary.Normalised
	if normalised == "" {
		normalised = "no rate configured"
	}
	_, _ = fmt.Fprintf(stdout, "%s %s (%s): %s\n", summary.Total, summary.Currency, normalised, strings.Join(tiers, " -> "))
	return 0
}
