package reconciler

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Actions recorded in the deployment summary.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionReused  = "reused"
	ActionTagged  = "marked for deletion"
	ActionDeleted = "deleted"
	ActionActive  = "active"
)

type WebhookEntry struct {
	Action       string
	ID           string
	FunctionName string
	URL          string
	Events       []string
}

type PriceEntry struct {
	Action      string
	ID          string
	SymbolicID  string
	Amount      int64
	Currency    string
	Interval    string
	CountryCode string
}

type ProductEntry struct {
	Action     string
	ID         string
	InternalID string
	Name       string
	Prices     []PriceEntry
}

type PortalEntry struct {
	Action     string
	ID         string
	InternalID string
}

// AccountSummary aggregates what one account's reconciliation did, for
// operator display at end of run.
type AccountSummary struct {
	AccountID string
	Webhooks  []WebhookEntry
	Products  []ProductEntry
	Portals   []PortalEntry
}

// Render produces the human-readable summary block. The account prefix is
// added when several accounts are reconciled in one run.
func (s *AccountSummary) Render(withAccountPrefix bool) string {
	var b strings.Builder

	if withAccountPrefix {
		fmt.Fprintf(&b, "account %s:\n", s.AccountID)
	}

	if len(s.Portals) > 0 {
		b.WriteString("portals:\n")
		for _, p := range s.Portals {
			fmt.Fprintf(&b, "  %s %s (%s)\n", p.Action, p.ID, p.InternalID)
		}
	}

	if len(s.Webhooks) > 0 {
		b.WriteString("webhooks:\n")
		for _, w := range s.Webhooks {
			fmt.Fprintf(&b, "  %s %s %s", w.Action, w.ID, w.FunctionName)
			if w.URL != "" {
				fmt.Fprintf(&b, " %s", w.URL)
			}
			if len(w.Events) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(w.Events, ", "))
			}
			b.WriteString("\n")
		}
	}

	if len(s.Products) > 0 {
		b.WriteString("products:\n")
		for _, p := range s.Products {
			fmt.Fprintf(&b, "  %s %s %s (%s)\n", p.Action, p.ID, p.InternalID, p.Name)
			for _, price := range p.Prices {
				fmt.Fprintf(&b, "    %s %s (%s) -> %s (%s)\n",
					price.Action, formatAmount(price), price.CountryCode, price.ID, price.SymbolicID)
			}
		}
	}

	if b.Len() == 0 || (withAccountPrefix && strings.Count(b.String(), "\n") == 1) {
		b.WriteString("nothing to reconcile\n")
	}

	return b.String()
}

// formatAmount renders a minor-unit amount as major units, e.g. 9900 sek
// yearly becomes "99.00 sek/year".
func formatAmount(p PriceEntry) string {
	major := decimal.NewFromInt(p.Amount).Div(decimal.NewFromInt(100)).StringFixed(2)
	if p.Interval == "" {
		return fmt.Sprintf("%s %s", major, p.Currency)
	}
	return fmt.Sprintf("%s %s/%s", major, p.Currency, p.Interval)
}
