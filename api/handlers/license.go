package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/classkeep/license-api/api"
	"github.com/classkeep/license-api/config"
	"github.com/classkeep/license-api/databases"
	"github.com/classkeep/license-api/licensing"
	"github.com/classkeep/license-api/models"
	"github.com/classkeep/license-api/notifications"
)

// License exported for testing purposes
type License struct {
	DB            databases.LicenseDatabase
	ADB           databases.AccountDatabase
	Issuer        licensing.Issuer
	Claimer       licensing.Claimer
	Invites       licensing.Invitations
	Subscriptions licensing.Subscriptions
	Notifier      notifications.Notifier
}

// PaginatedDataResponse wraps list responses with their paging info
type PaginatedDataResponse struct {
	Page       int         `json:"page"`
	TotalCount int64       `json:"totalCount"`
	Data       interface{} `json:"data"`
}

type issueLicenseRequest struct {
	LicenseType    string                `json:"licenseType"`
	Plan           models.PlanParameters `json:"plan"`
	OwnerEmail     string                `json:"ownerEmail"`
	OwnerName      string                `json:"ownerName"`
	Quantity       int                   `json:"quantity"`
	MaxUsages      int                   `json:"maxUsages"`
	ValidityDays   int                   `json:"validityDays"`
	SubscriptionID string                `json:"subscriptionID"`
}

// IssueLicenseHandler issues one or more licenses for a purchaser
func (l License) IssueLicenseHandler(w http.ResponseWriter, r *http.Request) {
	var req issueLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	issueReq := licensing.IssueRequest{
		LicenseType:    req.LicenseType,
		Plan:           req.Plan,
		OwnerEmail:     req.OwnerEmail,
		OwnerName:      req.OwnerName,
		MaxUsages:      req.MaxUsages,
		SubscriptionID: req.SubscriptionID,
	}
	if req.ValidityDays > 0 {
		issueReq.ValidityOverride = time.Duration(req.ValidityDays) * 24 * time.Hour
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := l.Issuer.IssueBatch(ctx, issueReq, req.Quantity)
	if err != nil {
		if errors.Is(err, licensing.ErrInvalidPlanParameters) {
			config.ErrorStatus("invalid plan parameters", http.StatusUnprocessableEntity, w, err)
			return
		}
		config.ErrorStatus("failed to issue license", http.StatusInternalServerError, w, err)
		return
	}

	if len(report.Issued) > 0 && l.Notifier != nil && req.OwnerEmail != "" {
		// one welcome per purchase, not per batch unit
		nerr := l.Notifier.Notify(req.OwnerEmail, notifications.TemplateLicenseWelcome, notifications.Context{
			RecipientName: req.OwnerName,
			LicenseCode:   report.Issued[0].Code,
		})
		if nerr != nil {
			zap.S().Errorw("failed to send welcome email", "owner", req.OwnerEmail, "error", nerr)
		}
	}

	status := http.StatusCreated
	if len(report.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}

// LicenseByCodeHandler returns a license by its code
func (l License) LicenseByCodeHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["license_code"]

	zap.S().Debugf("license_code: %v", code)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := l.DB.FindOne(ctx, bson.M{"license.code": code})
	if err != nil {
		config.ErrorStatus("failed to get license by code", http.StatusNotFound, w, err)
		return
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type validateLicenseResponse struct {
	Valid          bool                  `json:"valid"`
	Reason         string                `json:"reason"`
	AvailableSeats int                   `json:"availableSeats"`
	Plan           models.PlanParameters `json:"plan"`
}

// ValidateLicenseHandler reports whether a license is currently usable and
// how many seats remain
func (l License) ValidateLicenseHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["license_code"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := l.DB.FindOne(ctx, bson.M{"license.code": code})
	if err != nil {
		config.ErrorStatus("failed to get license by code", http.StatusNotFound, w, err)
		return
	}

	verdict := licensing.IsValid(dbResp.Details, time.Now())
	resp := validateLicenseResponse{
		Valid:          verdict.Valid,
		Reason:         verdict.Reason,
		AvailableSeats: licensing.AvailableSeats(dbResp.Details),
		Plan:           dbResp.Details.Plan,
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

type claimLicenseRequest struct {
	AccountID string `json:"accountID"`
}

// ClaimLicenseHandler binds an account to one sub-seat of the license
func (l License) ClaimLicenseHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["license_code"]

	var req claimLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.AccountID == "" {
		config.ErrorStatus("accountID is required", http.StatusBadRequest, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	result, err := l.Claimer.Claim(ctx, code, req.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, licensing.ErrLicenseNotFound):
			config.ErrorStatus("license not found", http.StatusNotFound, w, err)
		case errors.Is(err, licensing.ErrLicenseInvalid):
			config.ErrorStatus("license is not valid", http.StatusForbidden, w, err)
		case errors.Is(err, licensing.ErrLicenseExhausted):
			config.ErrorStatus("license has no remaining seats", http.StatusConflict, w, err)
		default:
			config.ErrorStatus("failed to claim license", http.StatusInternalServerError, w, err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

type gracePeriodRequest struct {
	Reason string `json:"reason"`
}

// ActivateGracePeriodHandler opens a grace window on a license
func (l License) ActivateGracePeriodHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["license_code"]

	var req gracePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	err := l.Subscriptions.ActivateGracePeriod(ctx, code, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, licensing.ErrLicenseNotFound):
			config.ErrorStatus("license not found", http.StatusNotFound, w, err)
		case errors.Is(err, licensing.ErrLicenseInvalid):
			config.ErrorStatus("license is not eligible for a grace period", http.StatusConflict, w, err)
		default:
			config.ErrorStatus("failed to activate grace period", http.StatusInternalServerError, w, err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "grace period activated"}`))
}

// CancelSubscriptionHandler cancels a license and suspends everyone bound to it
func (l License) CancelSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["license_code"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := l.Subscriptions.CancelSubscription(ctx, code); err != nil {
		if errors.Is(err, licensing.ErrLicenseNotFound) {
			config.ErrorStatus("license not found", http.StatusNotFound, w, err)
			return
		}
		config.ErrorStatus("failed to cancel subscription", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "subscription cancelled"}`))
}

// AccountsByLicenseHandler returns all accounts bound to the given license
func (l License) AccountsByLicenseHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["license_code"]
	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || Limit <= 0 {
		Limit = 10 // Default limit
	}
	Page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || Page < 1 {
		Page = 1 // Default page
	}
	skip := int64((Page - 1) * Limit)
	limit64 := int64(Limit)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	// Build filter once (reused for both queries)
	filter := bson.M{"account.licenseCode": code}

	// Execute queries in parallel for better performance
	type findResult struct {
		accounts []models.Account
		err      error
	}
	type countResult struct {
		total int64
		err   error
	}

	findChan := make(chan findResult, 1)
	countChan := make(chan countResult, 1)

	go func() {
		dbResp, err := l.ADB.Find(ctx, filter, &options.FindOptions{Limit: &limit64, Skip: &skip})
		findChan <- findResult{accounts: dbResp, err: err}
	}()

	go func() {
		total, err := l.ADB.CountDocuments(ctx, filter)
		countChan <- countResult{total: total, err: err}
	}()

	findRes := <-findChan
	countRes := <-countChan

	if findRes.err != nil {
		config.ErrorStatus("failed to get accounts by license code", http.StatusNotFound, w, findRes.err)
		return
	}

	if countRes.err != nil {
		config.ErrorStatus("failed to get total count of accounts", http.StatusInternalServerError, w, countRes.err)
		return
	}

	dbResp := findRes.accounts
	if len(dbResp) == 0 {
		dbResp = []models.Account{}
	}

	paginatedResponse := PaginatedDataResponse{
		Page:       Page,
		TotalCount: countRes.total,
		Data:       dbResp,
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(paginatedResponse)
}

type mintInvitationRequest struct {
	GuardianID string `json:"guardianID"`
}

// MintInvitationHandler mints a dependent-invitation token for the license's
// first claimant
func (l License) MintInvitationHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["license_code"]

	var req mintInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.GuardianID == "" {
		config.ErrorStatus("guardianID is required", http.StatusBadRequest, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	token, err := l.Invites.MintInvitation(ctx, code, req.GuardianID)
	if err != nil {
		switch {
		case errors.Is(err, licensing.ErrLicenseNotFound):
			config.ErrorStatus("license not found", http.StatusNotFound, w, err)
		case errors.Is(err, licensing.ErrLicenseInvalid):
			config.ErrorStatus("license is not valid", http.StatusForbidden, w, err)
		case errors.Is(err, licensing.ErrNotFirstClaimant):
			config.ErrorStatus("account cannot mint invitations for this license", http.StatusForbidden, w, err)
		default:
			config.ErrorStatus("failed to mint invitation", http.StatusInternalServerError, w, err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}
