package appointments

import (
	"context"
	"errors"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/courses"
	"github.com/wolfman30/spa-booking-engine/internal/effects"
	"github.com/wolfman30/spa-booking-engine/internal/notify"
	"github.com/wolfman30/spa-booking-engine/internal/shifts"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// Change is a committed status write.
type Change struct {
	Before booking.Appointment
	After  booking.Appointment
}

// Observer reacts to a committed change. Run is only invoked when Applies
// returns true.
type Observer struct {
	Name    string
	Applies func(Change) bool
	Run     func(ctx context.Context, c Change) error
}

// Lifecycle dispatches status changes to its observers through an effects
// runner, so an observer failure never fails the status write.
type Lifecycle struct {
	runner    *effects.Runner
	logger    *logging.Logger
	observers []Observer
}

func NewLifecycle(runner *effects.Runner, logger *logging.Logger) *Lifecycle {
	if logger == nil {
		logger = logging.Default()
	}
	if runner == nil {
		runner = effects.NewRunner(logger, nil)
	}
	return &Lifecycle{runner: runner, logger: logger}
}

// Register appends observers. They run in registration order.
func (l *Lifecycle) Register(obs ...Observer) *Lifecycle {
	l.observers = append(l.observers, obs...)
	return l
}

// Apply runs the observers interested in c and returns the names of those
// that failed.
func (l *Lifecycle) Apply(ctx context.Context, c Change) []string {
	var run []effects.Effect
	for _, o := range l.observers {
		if o.Applies != nil && !o.Applies(c) {
			continue
		}
		run = append(run, effects.Effect{
			Name: o.Name,
			Run:  func(ctx context.Context) error { return o.Run(ctx, c) },
		})
	}
	return l.runner.Run(ctx, run...)
}

// StandardObservers wires course propagation, shift sync and client
// notification. Nil collaborators are skipped.
func StandardObservers(courseSvc *courses.Service, shiftSvc *shifts.Service, notifier *notify.Service, logger *logging.Logger) []Observer {
	if logger == nil {
		logger = logging.Default()
	}
	var obs []Observer
	if courseSvc != nil {
		obs = append(obs,
			Observer{
				Name: "course.accept",
				Applies: func(c Change) bool {
					return isAcceptance(c.Before.Status, c.After.Status) && c.After.TherapistID != nil
				},
				Run: func(ctx context.Context, c Change) error {
					result, err := courseSvc.AcceptCourse(ctx, c.After.ID, *c.After.TherapistID)
					if err != nil || result == nil || shiftSvc == nil {
						return err
					}
					return coverSiblings(ctx, shiftSvc, result.Staffed)
				},
			},
			Observer{
				Name: "course.cancel",
				Applies: func(c Change) bool {
					return isCancellation(c.Before.Status, c.After.Status)
				},
				Run: func(ctx context.Context, c Change) error {
					_, err := courseSvc.CancelLinkedCourse(ctx, c.After.ID)
					return err
				},
			},
			Observer{
				Name: "course.complete",
				Applies: func(c Change) bool {
					return c.After.Status == booking.StatusCompleted
				},
				Run: func(ctx context.Context, c Change) error {
					_, err := courseSvc.CompleteLinkedSession(ctx, c.After.ID)
					return err
				},
			},
		)
	}
	obs = append(obs, Observer{
		Name: "course.revert",
		Applies: func(c Change) bool {
			return c.After.Status == booking.StatusPending && c.Before.Status != booking.StatusPending
		},
		Run: func(ctx context.Context, c Change) error {
			logger.Info("appointments: reverted to pending",
				"appointment_id", c.After.ID,
				"from", c.Before.Status,
			)
			return nil
		},
	})
	if shiftSvc != nil {
		obs = append(obs, Observer{
			Name: "shift.sync",
			Applies: func(c Change) bool {
				return c.After.TherapistID != nil && c.After.Status == booking.StatusUpcoming
			},
			Run: func(ctx context.Context, c Change) error {
				return shiftSvc.EnsureCovering(ctx, *c.After.TherapistID, c.After.Date, c.After.Time)
			},
		})
	}
	if notifier != nil {
		obs = append(obs, Observer{
			Name: "notify.client",
			Applies: func(c Change) bool {
				return c.Before.Status != c.After.Status
			},
			Run: func(ctx context.Context, c Change) error {
				return notifier.NotifyStatusChange(ctx, &c.After, c.After.Status)
			},
		})
	}
	return obs
}

// coverSiblings extends shifts over every upcoming sibling the course
// acceptance staffed.
func coverSiblings(ctx context.Context, shiftSvc *shifts.Service, staffed []booking.Appointment) error {
	var errs []error
	for _, a := range staffed {
		if a.TherapistID == nil || a.Status != booking.StatusUpcoming {
			continue
		}
		if err := shiftSvc.EnsureCovering(ctx, *a.TherapistID, a.Date, a.Time); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
