package models

// Payment event outcomes
const (
	PaymentOutcomeSuccess = "success"
	PaymentOutcomeFailure = "failure"
)

// PaymentEvent is the slice of a payment-processor event this service cares
// about. Verifying the event's authenticity is the webhook caller's job;
// by the time one of these reaches the licensing layer it is trusted.
type PaymentEvent struct {
	TransactionID string  `json:"transactionID" bson:"transactionID"`
	Amount        float64 `json:"amount" bson:"amount"`
	Outcome       string  `json:"outcome" bson:"outcome"`
	LicenseCode   string  `json:"licenseCode" bson:"licenseCode"`
}
