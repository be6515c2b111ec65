package enums

// BookingStatus maps to the booking_status enum in Postgres.
type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusNoShow    BookingStatus = "no_show"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusBooked,
	BookingStatusActive,
	BookingStatusCompleted,
	BookingStatusCancelled,
	BookingStatusNoShow,
}

func (b BookingStatus) IsValid() bool { return isOneOf(b, validBookingStatuses) }

func ParseBookingStatus(value string) (BookingStatus, error) {
	return parseOneOf("booking status", value, validBookingStatuses)
}

// IsTerminal reports whether no further lifecycle transition is permitted.
func (b BookingStatus) IsTerminal() bool {
	switch b {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow:
		return true
	default:
		return false
	}
}

// OpenBookingStatuses lists the statuses that still hold a claim on a charger.
var OpenBookingStatuses = []BookingStatus{BookingStatusBooked, BookingStatusActive}

// BookingType distinguishes immediate sessions from scheduled windows.
type BookingType string

const (
	BookingTypeImmediate BookingType = "immediate"
	BookingTypeScheduled BookingType = "scheduled"
)

var validBookingTypes = []BookingType{
	BookingTypeImmediate,
	BookingTypeScheduled,
}

func (b BookingType) IsValid() bool { return isOneOf(b, validBookingTypes) }

func ParseBookingType(value string) (BookingType, error) {
	return parseOneOf("booking type", value, validBookingTypes)
}

// BookingEvent is a lifecycle trigger applied to a booking.
type BookingEvent string

const (
	BookingEventStart  BookingEvent = "start"
	BookingEventEnd    BookingEvent = "end"
	BookingEventCancel BookingEvent = "cancel"
	BookingEventNoShow BookingEvent = "no_show"
)

var validBookingEvents = []BookingEvent{
	BookingEventStart,
	BookingEventEnd,
	BookingEventCancel,
	BookingEventNoShow,
}

func (b BookingEvent) IsValid() bool { return isOneOf(b, validBookingEvents) }

func ParseBookingEvent(value string) (BookingEvent, error) {
	return parseOneOf("booking event", value, validBookingEvents)
}

// CancellationActor records who cancelled a booking.
type CancellationActor string

const (
	CancellationActorUser     CancellationActor = "user"
	CancellationActorSystem   CancellationActor = "system"
	CancellationActorOperator CancellationActor = "operator"
)

var validCancellationActors = []CancellationActor{
	CancellationActorUser,
	CancellationActorSystem,
	CancellationActorOperator,
}

func (c CancellationActor) IsValid() bool { return isOneOf(c, validCancellationActors) }

func ParseCancellationActor(value string) (CancellationActor, error) {
	return parseOneOf("cancellation actor", value, validCancellationActors)
}
