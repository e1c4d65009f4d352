// Package loyalty converts spend into wallet points and tier levels.
package loyalty

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultTiers is used when LOYALTY_TIERS is unset.
const DefaultTiers = "Member:0,Silver:5000000,Gold:20000000,Platinum:50000000"

// PointsPerUnit is the spend (VND) that earns one point.
const PointsPerUnit = 1000

// Tier is one threshold of the tier table.
type Tier struct {
	Name     string
	MinSpent int64
}

// Table is a tier table sorted by ascending threshold.
type Table []Tier

// ParseTiers parses "Name:threshold,..." into a table. The lowest threshold
// must be zero so every spend maps to a tier.
func ParseTiers(raw string) (Table, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultTiers
	}
	var table Table
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("loyalty: invalid tier %q", part)
		}
		threshold, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || threshold < 0 {
			return nil, fmt.Errorf("loyalty: invalid threshold for tier %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("loyalty: duplicate tier %q", name)
		}
		seen[name] = true
		table = append(table, Tier{Name: name, MinSpent: threshold})
	}
	sort.SliceStable(table, func(i, j int) bool { return table[i].MinSpent < table[j].MinSpent })
	if table[0].MinSpent != 0 {
		return nil, fmt.Errorf("loyalty: lowest tier %q must start at 0", table[0].Name)
	}
	return table, nil
}

// MustParseTiers is ParseTiers for static input.
func MustParseTiers(raw string) Table {
	t, err := ParseTiers(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// TierFor returns the highest tier whose threshold totalSpent reaches.
func (t Table) TierFor(totalSpent int64) string {
	name := ""
	for _, tier := range t {
		if totalSpent >= tier.MinSpent {
			name = tier.Name
		}
	}
	return name
}

// Points returns the points earned by a payment of amount.
func Points(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount / PointsPerUnit
}
