package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/classkeep/license-api/api/handlers"
	"github.com/classkeep/license-api/databases/mocks"
	"github.com/classkeep/license-api/licensing"
	"github.com/classkeep/license-api/models"
	notifmocks "github.com/classkeep/license-api/notifications/mocks"
)

func testLicenseDoc() *models.License {
	return &models.License{
		ID: primitive.NewObjectID(),
		Details: models.LicenseDetails{
			Code:        "FAM-ABCDEF123456",
			LicenseType: models.LicenseTypeFamily,
			Status:      models.LicenseStatusPaid,
			Plan:        models.PlanParameters{GuardianSeats: 2, DependentSeats: 3, Price: 19.99},
			MaxUsages:   2,
			SubSeats: []models.SubSeat{
				{Code: "SEAT1-AAAA1111", Status: models.SubSeatAvailable},
				{Code: "SEAT2-BBBB2222", Status: models.SubSeatAvailable},
			},
			ExpiresAt:  primitive.NewDateTimeFromTime(time.Now().Add(10 * 24 * time.Hour)),
			OwnerEmail: "parent@example.com",
			OwnerName:  "Jordan Avery",
		},
	}
}

func TestLicense_IssueLicenseHandler(t *testing.T) {
	db := &mocks.LicenseDatabase{}
	db.On("InsertOne", mock.Anything, mock.AnythingOfType("models.License")).Return(nil, nil)

	notifier := &notifmocks.Notifier{}
	notifier.On("Notify", "parent@example.com", mock.Anything, mock.Anything).Return(nil)

	l := handlers.License{
		DB:       db,
		Issuer:   licensing.Issuer{DB: db, Validity: 30 * 24 * time.Hour},
		Notifier: notifier,
	}

	body := bytes.NewBufferString(`{
		"licenseType": "family",
		"plan": {"guardianSeats": 2, "dependentSeats": 3, "price": 19.99},
		"ownerEmail": "parent@example.com",
		"ownerName": "Jordan Avery"
	}`)
	req, err := http.NewRequest("POST", "/api/v1/licenses", body)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.IssueLicenseHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var report licensing.BatchReport
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Len(t, report.Issued, 1)
	assert.Len(t, report.Issued[0].SubSeatCodes, 2)
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestLicense_IssueLicenseHandlerInvalidPlan(t *testing.T) {
	l := handlers.License{
		Issuer: licensing.Issuer{DB: &mocks.LicenseDatabase{}, Validity: 30 * 24 * time.Hour},
	}

	body := bytes.NewBufferString(`{
		"licenseType": "family",
		"plan": {"guardianSeats": 5, "dependentSeats": 3}
	}`)
	req, err := http.NewRequest("POST", "/api/v1/licenses", body)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.IssueLicenseHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestLicense_CancelSubscriptionHandlerUnknownLicense(t *testing.T) {
	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	l := handlers.License{
		DB:            db,
		Subscriptions: licensing.Subscriptions{Licenses: db},
	}

	req, err := http.NewRequest("DELETE", "/api/v1/licenses/FAM-MISSING00000/subscription", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-MISSING00000"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.CancelSubscriptionHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLicense_IssueLicenseHandlerBatch(t *testing.T) {
	db := &mocks.LicenseDatabase{}
	db.On("InsertOne", mock.Anything, mock.AnythingOfType("models.License")).Return(nil, nil)

	l := handlers.License{
		DB:     db,
		Issuer: licensing.Issuer{DB: db, Validity: 365 * 24 * time.Hour},
	}

	body := bytes.NewBufferString(`{
		"licenseType": "school",
		"plan": {"dependentSeats": 50},
		"quantity": 3
	}`)
	req, err := http.NewRequest("POST", "/api/v1/licenses", body)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.IssueLicenseHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var report licensing.BatchReport
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Len(t, report.Issued, 3)
}

func TestLicense_LicenseByCodeHandler(t *testing.T) {
	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(testLicenseDoc(), nil)

	l := handlers.License{DB: db}

	req, err := http.NewRequest("GET", "/api/v1/licenses/FAM-ABCDEF123456", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-ABCDEF123456"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.LicenseByCodeHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got models.License
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "FAM-ABCDEF123456", got.Details.Code)
}

func TestLicense_LicenseByCodeHandlerNotFound(t *testing.T) {
	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	l := handlers.License{DB: db}

	req, err := http.NewRequest("GET", "/api/v1/licenses/FAM-MISSING00000", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-MISSING00000"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.LicenseByCodeHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, `{"response": "failed to get license by code, mongo: no documents in result"}`, rr.Body.String())
}

func TestLicense_ValidateLicenseHandler(t *testing.T) {
	lic := testLicenseDoc()
	lic.Details.SubSeats[0].Status = models.SubSeatUsed

	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(lic, nil)

	l := handlers.License{DB: db}

	req, err := http.NewRequest("GET", "/api/v1/licenses/FAM-ABCDEF123456/validate", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-ABCDEF123456"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.ValidateLicenseHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Valid          bool   `json:"valid"`
		Reason         string `json:"reason"`
		AvailableSeats int    `json:"availableSeats"`
	}
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, 1, resp.AvailableSeats)
}

func TestLicense_ClaimLicenseHandler(t *testing.T) {
	db := &mocks.LicenseDatabase{}
	db.On("FindOneAndUpdate", mock.Anything, mock.Anything, mock.Anything).
		Return(testLicenseDoc(), nil)
	db.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	l := handlers.License{Claimer: licensing.Claimer{DB: db}}

	body := bytes.NewBufferString(`{"accountID": "acct-guardian-1"}`)
	req, err := http.NewRequest("POST", "/api/v1/licenses/FAM-ABCDEF123456/claim", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-ABCDEF123456"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.ClaimLicenseHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var result licensing.ClaimResult
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "SEAT1-AAAA1111", result.SubSeatCode)
	assert.True(t, result.FirstClaimant)
}

func TestLicense_ClaimLicenseHandlerStatuses(t *testing.T) {
	exhausted := testLicenseDoc()
	exhausted.Details.UsageCount = 2
	exhausted.Details.SubSeats[0].Status = models.SubSeatUsed
	exhausted.Details.SubSeats[1].Status = models.SubSeatUsed

	expired := testLicenseDoc()
	expired.Details.ExpiresAt = primitive.NewDateTimeFromTime(time.Now().Add(-time.Hour))

	cases := []struct {
		name       string
		reread     *models.License
		rereadErr  error
		wantStatus int
	}{
		{"missing license", nil, mongo.ErrNoDocuments, http.StatusNotFound},
		{"expired license", expired, nil, http.StatusForbidden},
		{"exhausted license", exhausted, nil, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := &mocks.LicenseDatabase{}
			db.On("FindOneAndUpdate", mock.Anything, mock.Anything, mock.Anything).
				Return(nil, mongo.ErrNoDocuments)
			db.On("FindOne", mock.Anything, mock.Anything).Return(tc.reread, tc.rereadErr)

			l := handlers.License{Claimer: licensing.Claimer{DB: db}}

			body := bytes.NewBufferString(`{"accountID": "acct-1"}`)
			req, err := http.NewRequest("POST", "/api/v1/licenses/FAM-ABCDEF123456/claim", body)
			if err != nil {
				t.Fatal(err)
			}
			req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-ABCDEF123456"})

			rr := httptest.NewRecorder()
			http.HandlerFunc(l.ClaimLicenseHandler).ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}

func TestLicense_ClaimLicenseHandlerMissingAccount(t *testing.T) {
	l := handlers.License{}

	body := bytes.NewBufferString(`{}`)
	req, err := http.NewRequest("POST", "/api/v1/licenses/FAM-ABCDEF123456/claim", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-ABCDEF123456"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.ClaimLicenseHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLicense_AccountsByLicenseHandler(t *testing.T) {
	adb := &mocks.AccountDatabase{}
	adb.On("Find", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Account{
			{ID: "g1", Details: models.AccountDetails{LicenseCode: "FAM-ABCDEF123456"}},
			{ID: "g2", Details: models.AccountDetails{LicenseCode: "FAM-ABCDEF123456"}},
		}, nil)
	adb.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(2), nil)

	l := handlers.License{ADB: adb}

	req, err := http.NewRequest("GET", "/api/v1/licenses/FAM-ABCDEF123456/accounts?page=1&limit=10", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-ABCDEF123456"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.AccountsByLicenseHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp handlers.PaginatedDataResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, int64(2), resp.TotalCount)
}

func TestLicense_MintInvitationHandler(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	lic := testLicenseDoc()
	lic.Details.SubSeats[0].Status = models.SubSeatUsed
	lic.Details.SubSeats[0].UsedBy = "acct-guardian-1"

	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(lic, nil)

	l := handlers.License{Invites: licensing.Invitations{Licenses: db}}

	body := bytes.NewBufferString(`{"guardianID": "acct-guardian-1"}`)
	req, err := http.NewRequest("POST", "/api/v1/licenses/FAM-ABCDEF123456/invitations", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-ABCDEF123456"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.MintInvitationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
}

func TestLicense_MintInvitationHandlerNotFirstClaimant(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	lic := testLicenseDoc()
	lic.Details.SubSeats[0].Status = models.SubSeatUsed
	lic.Details.SubSeats[0].UsedBy = "acct-guardian-1"

	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(lic, nil)

	l := handlers.License{Invites: licensing.Invitations{Licenses: db}}

	body := bytes.NewBufferString(`{"guardianID": "acct-guardian-2"}`)
	req, err := http.NewRequest("POST", "/api/v1/licenses/FAM-ABCDEF123456/invitations", body)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"license_code": "FAM-ABCDEF123456"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.MintInvitationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}
