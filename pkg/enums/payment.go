package enums

// PaymentStatus tracks the gateway charge attached to a booking.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (p PaymentStatus) IsValid() bool { return isOneOf(p, validPaymentStatuses) }

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parseOneOf("payment status", value, validPaymentStatuses)
}

// PaymentMethod describes how a driver pays for a session.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodUPI    PaymentMethod = "upi"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodWallet,
	PaymentMethodUPI,
}

func (p PaymentMethod) IsValid() bool { return isOneOf(p, validPaymentMethods) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parseOneOf("payment method", value, validPaymentMethods)
}

// Currency is an ISO 4217 code accepted for charger pricing.
type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

var validCurrencies = []Currency{
	CurrencyINR,
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
}

func (c Currency) IsValid() bool { return isOneOf(c, validCurrencies) }

func ParseCurrency(value string) (Currency, error) {
	return parseOneOf("currency", value, validCurrencies)
}
