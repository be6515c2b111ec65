package enums

// NotificationChannel is a delivery channel the notification subsystem fans out to.
type NotificationChannel string

const (
	NotificationChannelInApp NotificationChannel = "in_app"
	NotificationChannelPush  NotificationChannel = "push"
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelSMS   NotificationChannel = "sms"
)

var validNotificationChannels = []NotificationChannel{
	NotificationChannelInApp,
	NotificationChannelPush,
	NotificationChannelEmail,
	NotificationChannelSMS,
}

func (n NotificationChannel) IsValid() bool { return isOneOf(n, validNotificationChannels) }

func ParseNotificationChannel(value string) (NotificationChannel, error) {
	return parseOneOf("notification channel", value, validNotificationChannels)
}

// NotificationType classifies booking notifications.
type NotificationType string

const (
	NotificationTypeBookingCreated   NotificationType = "booking_created"
	NotificationTypeSessionStarted   NotificationType = "session_started"
	NotificationTypeSessionCompleted NotificationType = "session_completed"
	NotificationTypeBookingCancelled NotificationType = "booking_cancelled"
	NotificationTypeBookingNoShow    NotificationType = "booking_no_show"
	NotificationTypePaymentFailed    NotificationType = "payment_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeBookingCreated,
	NotificationTypeSessionStarted,
	NotificationTypeSessionCompleted,
	NotificationTypeBookingCancelled,
	NotificationTypeBookingNoShow,
	NotificationTypePaymentFailed,
}

func (n NotificationType) IsValid() bool { return isOneOf(n, validNotificationTypes) }

func ParseNotificationType(value string) (NotificationType, error) {
	return parseOneOf("notification type", value, validNotificationTypes)
}
