package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateBooking      OutboxAggregateType = "booking"
	AggregateStation      OutboxAggregateType = "station"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBooking,
	AggregateStation,
	AggregateNotification,
}

func (o OutboxAggregateType) IsValid() bool { return isOneOf(o, validAggregateTypes) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseOneOf("aggregate type", value, validAggregateTypes)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventBookingCreated        OutboxEventType = "booking_created"
	EventBookingStarted        OutboxEventType = "booking_started"
	EventBookingCompleted      OutboxEventType = "booking_completed"
	EventBookingCancelled      OutboxEventType = "booking_cancelled"
	EventBookingNoShow         OutboxEventType = "booking_no_show"
	EventPaymentFailed         OutboxEventType = "payment_failed"
	EventRefundIssued          OutboxEventType = "refund_issued"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBookingCreated,
	EventBookingStarted,
	EventBookingCompleted,
	EventBookingCancelled,
	EventBookingNoShow,
	EventPaymentFailed,
	EventRefundIssued,
	EventNotificationRequested,
}

func (o OutboxEventType) IsValid() bool { return isOneOf(o, validOutboxEventTypes) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseOneOf("event type", value, validOutboxEventTypes)
}

// OutboxDLQErrorReason records why the publisher dead-lettered an event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: every publish attempt failed.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row can never be published as stored.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
