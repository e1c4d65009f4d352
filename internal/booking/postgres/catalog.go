package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
)

// GetService implements booking.CatalogRepository.
func (s *Store) GetService(ctx context.Context, id uuid.UUID) (*booking.Service, error) {
	var svc booking.Service
	err := s.db.QueryRow(ctx, `
		SELECT id, name, price, duration_minutes, category_id
		FROM services WHERE id = $1`, id).Scan(
		&svc.ID, &svc.Name, &svc.Price, &svc.DurationMinutes, &svc.CategoryID,
	)
	if err != nil {
		return nil, notFound(err, "get service")
	}
	return &svc, nil
}

// ListAvailability implements booking.StaffRepository. Staff qualify for a
// category through staff_categories.
func (s *Store) ListAvailability(ctx context.Context, date time.Time, categoryID uuid.UUID) ([]booking.StaffAvailability, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.staff_id, a.available_date, a.time_slots, a.available_service_ids
		FROM staff_availability a
		JOIN staff_categories sc ON sc.staff_id = a.staff_id AND sc.category_id = $2
		JOIN staff st ON st.id = a.staff_id AND st.is_active
		WHERE a.available_date = $1
		ORDER BY a.staff_id`, booking.DateOnly(date), categoryID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list availability: %w", err)
	}
	defer rows.Close()

	var result []booking.StaffAvailability
	for rows.Next() {
		var av booking.StaffAvailability
		var serviceIDs []string
		if err := rows.Scan(&av.StaffID, &av.Date, &av.TimeSlots, &serviceIDs); err != nil {
			return nil, fmt.Errorf("postgres: scan availability: %w", err)
		}
		if serviceIDs != nil {
			av.AvailableServiceIDs = make([]uuid.UUID, 0, len(serviceIDs))
			for _, raw := range serviceIDs {
				id, err := uuid.Parse(raw)
				if err != nil {
					return nil, fmt.Errorf("postgres: availability service id %q: %w", raw, err)
				}
				av.AvailableServiceIDs = append(av.AvailableServiceIDs, id)
			}
		}
		result = append(result, av)
	}
	return result, rows.Err()
}
