package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slot_engine",
			Name:      "booking_created_total",
			Help:      "Count of appointments successfully booked.",
		},
	)

	bookingConflict = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slot_engine",
			Name:      "booking_conflict_total",
			Help:      "Count of bookings rejected, by conflict kind.",
		},
		[]string{"kind"},
	)

	appointmentCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slot_engine",
			Name:      "appointment_cancelled_total",
			Help:      "Count of appointments cancelled.",
		},
	)

	cascadeCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slot_engine",
			Name:      "cascade_cancelled_total",
			Help:      "Count of appointments cancelled by emergency blocks.",
		},
	)

	notificationProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slot_engine",
			Name:      "notification_processed_total",
			Help:      "Count of notifications drained from the outbox, by result.",
		},
		[]string{"result"},
	)
)

// Register registers all collectors (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingConflict,
			appointmentCancelled,
			cascadeCancelled,
			notificationProcessed,
		)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingConflict(kind string) {
	bookingConflict.WithLabelValues(kind).Inc()
}

func IncAppointmentCancelled() {
	appointmentCancelled.Inc()
}

func IncCascadeCancelled() {
	cascadeCancelled.Inc()
}

func IncNotificationProcessed(result string) {
	notificationProcessed.WithLabelValues(result).Inc()
}
