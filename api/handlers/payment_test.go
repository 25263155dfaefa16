package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/classkeep/license-api/api/handlers"
	"github.com/classkeep/license-api/databases/mocks"
	"github.com/classkeep/license-api/licensing"
	"github.com/classkeep/license-api/models"
)

func newPaymentHandler(ldb *mocks.LicenseDatabase, adb *mocks.AccountDatabase) handlers.Payment {
	return handlers.Payment{
		Subscriptions: licensing.Subscriptions{
			Licenses: ldb,
			Cascade: licensing.Cascade{
				Licenses: ldb,
				Accounts: adb,
				Resolver: licensing.AccountDependentResolver{DB: adb},
			},
			Validity:    30 * 24 * time.Hour,
			GraceLength: 7 * 24 * time.Hour,
		},
	}
}

func stubRestoration(ldb *mocks.LicenseDatabase, adb *mocks.AccountDatabase) {
	ldb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	adb.On("Find", mock.Anything, mock.Anything).Return([]models.Account{}, nil)
	adb.On("UpdateMany", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
}

func TestPayment_PaymentEventHandler(t *testing.T) {
	ldb := &mocks.LicenseDatabase{}
	adb := &mocks.AccountDatabase{}
	ldb.On("FindOne", mock.Anything, mock.Anything).Return(testLicenseDoc(), nil)
	stubRestoration(ldb, adb)

	p := newPaymentHandler(ldb, adb)

	body := bytes.NewBufferString(`{
		"transactionID": "txn_001",
		"amount": 19.99,
		"outcome": "success",
		"licenseCode": "FAM-ABCDEF123456"
	}`)
	req, err := http.NewRequest("POST", "/api/v1/payments/events", body)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(p.PaymentEventHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"message": "payment event applied"}`, rr.Body.String())
}

func TestPayment_PaymentEventHandlerValidation(t *testing.T) {
	p := handlers.Payment{}

	body := bytes.NewBufferString(`{"outcome": "success"}`)
	req, err := http.NewRequest("POST", "/api/v1/payments/events", body)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(p.PaymentEventHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPayment_PaymentEventHandlerUnknownLicense(t *testing.T) {
	ldb := &mocks.LicenseDatabase{}
	ldb.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	p := newPaymentHandler(ldb, &mocks.AccountDatabase{})

	body := bytes.NewBufferString(`{
		"outcome": "failure",
		"licenseCode": "FAM-MISSING00000"
	}`)
	req, err := http.NewRequest("POST", "/api/v1/payments/events", body)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(p.PaymentEventHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPayment_StripeWebhookHandlerRenewal(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	ldb := &mocks.LicenseDatabase{}
	adb := &mocks.AccountDatabase{}
	ldb.On("FindOne", mock.Anything, mock.Anything).Return(testLicenseDoc(), nil)

	var update bson.M
	ldb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) { update = args.Get(2).(bson.M) })
	adb.On("Find", mock.Anything, mock.Anything).Return([]models.Account{}, nil)
	adb.On("UpdateMany", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)

	p := newPaymentHandler(ldb, adb)

	body := bytes.NewBufferString(`{
		"id": "evt_001",
		"type": "invoice.payment_succeeded",
		"data": {
			"object": {
				"id": "in_001",
				"amount_paid": 1999,
				"metadata": {"license_code": "FAM-ABCDEF123456"}
			}
		}
	}`)
	req, err := http.NewRequest("POST", "/api/v1/payments/stripe", body)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(p.StripeWebhookHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"message": "stripe event applied"}`, rr.Body.String())

	attempt := update["$push"].(bson.M)["license.renewalHistory"].(models.RenewalAttempt)
	assert.Equal(t, "in_001", attempt.TransactionID)
	assert.Equal(t, 19.99, attempt.Amount)
}

func TestPayment_StripeWebhookHandlerIgnoresUnrelatedEvents(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	p := handlers.Payment{}

	body := bytes.NewBufferString(`{
		"id": "evt_002",
		"type": "customer.created",
		"data": {"object": {"id": "cus_001"}}
	}`)
	req, err := http.NewRequest("POST", "/api/v1/payments/stripe", body)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(p.StripeWebhookHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"message": "event ignored"}`, rr.Body.String())
}

func TestPayment_StripeWebhookHandlerUnknownLicenseIsAcked(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	ldb := &mocks.LicenseDatabase{}
	ldb.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	p := newPaymentHandler(ldb, &mocks.AccountDatabase{})

	body := bytes.NewBufferString(`{
		"id": "evt_003",
		"type": "invoice.payment_failed",
		"data": {
			"object": {
				"id": "in_003",
				"amount_due": 1999,
				"metadata": {"license_code": "FAM-GONE00000000"}
			}
		}
	}`)
	req, err := http.NewRequest("POST", "/api/v1/payments/stripe", body)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(p.StripeWebhookHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"message": "license not found, event dropped"}`, rr.Body.String())
}

func TestPayment_StripeWebhookHandlerBadSignature(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	p := handlers.Payment{}

	body := bytes.NewBufferString(`{"id": "evt_004", "type": "invoice.payment_succeeded"}`)
	req, err := http.NewRequest("POST", "/api/v1/payments/stripe", body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")

	rr := httptest.NewRecorder()
	http.HandlerFunc(p.StripeWebhookHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
