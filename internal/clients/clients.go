// Package clients resolves the client behind a booking request.
package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

// NewClientInfo is the contact data a walk-in or first-time client provides.
type NewClientInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// NormalizePhone strips formatting and rewrites the +84 country prefix to
// the domestic leading zero.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "84") && len(digits) >= 11 {
		digits = "0" + digits[2:]
	}
	return digits
}

// FindOrCreate returns the client registered under info's phone, creating
// one when none exists.
func FindOrCreate(ctx context.Context, repo booking.ClientRepository, info NewClientInfo) (*booking.Client, error) {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		return nil, fmt.Errorf("clients: %w", booking.MissingField("client.name"))
	}
	phone := NormalizePhone(info.Phone)
	if len(phone) < 9 {
		return nil, fmt.Errorf("clients: %w", booking.MissingField("client.phone"))
	}

	existing, err := repo.FindClientByPhone(ctx, phone)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, booking.ErrNotFound) {
		return nil, fmt.Errorf("clients: find by phone: %w", err)
	}

	c := &booking.Client{Name: name, Phone: phone, Email: strings.TrimSpace(info.Email)}
	if err := repo.CreateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("clients: create: %w", err)
	}
	return c, nil
}
