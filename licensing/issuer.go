package licensing

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/classkeep/license-api/databases"
	"github.com/classkeep/license-api/models"
)

// Plan seat ranges and batch bounds
const (
	familyGuardianSeatsMin  = 1
	familyGuardianSeatsMax  = 2
	familyDependentSeatsMin = 1
	familyDependentSeatsMax = 4
	schoolDependentSeatsMin = 50
	batchQuantityMin        = 1
	batchQuantityMax        = 100

	// insertRetries bounds the duplicate-code regenerate-and-retry loop
	insertRetries = 3
)

// Issuer creates licenses, derives their sub-seat codes and assigns the
// initial usage quota
type Issuer struct {
	DB       databases.LicenseDatabase
	Validity time.Duration
}

// IssueRequest carries the plan, purchaser and per-issue options
type IssueRequest struct {
	LicenseType string
	Plan        models.PlanParameters
	OwnerEmail  string
	OwnerName   string

	// MaxUsages overrides the family default (= guardian seats) when > 0
	MaxUsages int
	// ValidityOverride replaces the configured window when > 0 (admin grants)
	ValidityOverride time.Duration
	// Status sets the initial lifecycle status; defaults to "paid"
	Status string
	// SubscriptionID links the license to an external recurring subscription
	SubscriptionID string
}

// IssueResult is returned per successfully issued license
type IssueResult struct {
	Code         string    `json:"code"`
	SubSeatCodes []string  `json:"subSeatCodes"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// BatchFailure records one failed unit of a batch issuance
type BatchFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchReport collects the successes and failures of a batch issuance
type BatchReport struct {
	Issued   []IssueResult  `json:"issued"`
	Failures []BatchFailure `json:"failures"`
}

// Issue validates the plan, generates the license and its sub-seats, persists
// it and returns the codes
func (i Issuer) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if err := validatePlan(req.LicenseType, req.Plan); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < insertRetries; attempt++ {
		lic := i.buildLicense(req)
		_, err := i.DB.InsertOne(ctx, lic)
		if err == nil {
			codes := make([]string, len(lic.Details.SubSeats))
			for n, seat := range lic.Details.SubSeats {
				codes[n] = seat.Code
			}
			return &IssueResult{
				Code:         lic.Details.Code,
				SubSeatCodes: codes,
				ExpiresAt:    lic.Details.ExpiresAt.Time(),
			}, nil
		}
		if databases.IsDuplicateKeyError(err) {
			// code collided with an existing license; regenerate and retry
			zap.S().Warnw("license code collision, regenerating", "attempt", attempt+1)
			continue
		}
		return nil, fmt.Errorf("failed to insert license: %w", err)
	}
	return nil, fmt.Errorf("failed to generate a unique license code after %d attempts", insertRetries)
}

// IssueBatch issues quantity licenses from the same request. One failed unit
// does not roll back previously issued units; failures are collected and
// reported alongside the successes.
func (i Issuer) IssueBatch(ctx context.Context, req IssueRequest, quantity int) (*BatchReport, error) {
	if quantity < batchQuantityMin || quantity > batchQuantityMax {
		return nil, fmt.Errorf("%w: quantity must be between %d and %d", ErrInvalidPlanParameters, batchQuantityMin, batchQuantityMax)
	}
	// The plan is the same for every unit, so an invalid one rejects the
	// whole batch up front instead of surfacing as N per-unit failures.
	if err := validatePlan(req.LicenseType, req.Plan); err != nil {
		return nil, err
	}
	report := &BatchReport{Issued: []IssueResult{}, Failures: []BatchFailure{}}
	for n := 0; n < quantity; n++ {
		res, err := i.Issue(ctx, req)
		if err != nil {
			zap.S().Errorw("batch issuance unit failed", "index", n, "error", err)
			report.Failures = append(report.Failures, BatchFailure{Index: n, Error: err.Error()})
			continue
		}
		report.Issued = append(report.Issued, *res)
	}
	return report, nil
}

func (i Issuer) buildLicense(req IssueRequest) models.License {
	now := time.Now()

	validity := i.Validity
	if req.ValidityOverride > 0 {
		validity = req.ValidityOverride
	}

	status := req.Status
	if status == "" {
		status = models.LicenseStatusPaid
	}

	details := models.LicenseDetails{
		Code:           newLicenseCode(req.LicenseType),
		LicenseType:    req.LicenseType,
		Status:         status,
		Plan:           req.Plan,
		SubSeats:       buildSubSeats(req.LicenseType, req.Plan),
		ExpiresAt:      primitive.NewDateTimeFromTime(now.Add(validity)),
		RenewalHistory: []models.RenewalAttempt{},
		OwnerEmail:     req.OwnerEmail,
		OwnerName:      req.OwnerName,
		CreatedAt:      primitive.NewDateTimeFromTime(now),
		UpdatedAt:      primitive.NewDateTimeFromTime(now),
	}

	switch req.LicenseType {
	case models.LicenseTypeFamily:
		details.MaxUsages = req.Plan.GuardianSeats
		if req.MaxUsages > 0 {
			details.MaxUsages = req.MaxUsages
		}
	case models.LicenseTypeSchool:
		// capacity is expressed purely through sub-seats
		details.MaxUsages = len(details.SubSeats)
	}

	if req.SubscriptionID != "" {
		details.Subscription = &models.Subscription{
			ExternalID:    req.SubscriptionID,
			Status:        models.SubscriptionActive,
			NextBillingAt: details.ExpiresAt,
			AutoRenew:     true,
		}
	}

	return models.License{
		ID:      primitive.NewObjectID(),
		Details: details,
	}
}

// buildSubSeats derives one sub-seat per guardian seat for family licenses
// and one per dependent seat for school licenses
func buildSubSeats(licenseType string, plan models.PlanParameters) []models.SubSeat {
	count := plan.GuardianSeats
	if licenseType == models.LicenseTypeSchool {
		count = plan.DependentSeats
	}
	seats := make([]models.SubSeat, count)
	for n := range seats {
		seats[n] = models.SubSeat{
			Code:   newSubSeatCode(n),
			Status: models.SubSeatAvailable,
		}
	}
	return seats
}

func validatePlan(licenseType string, plan models.PlanParameters) error {
	switch licenseType {
	case models.LicenseTypeFamily:
		if plan.GuardianSeats < familyGuardianSeatsMin || plan.GuardianSeats > familyGuardianSeatsMax {
			return fmt.Errorf("%w: family plans require %d-%d guardian seats, got %d",
				ErrInvalidPlanParameters, familyGuardianSeatsMin, familyGuardianSeatsMax, plan.GuardianSeats)
		}
		if plan.DependentSeats < familyDependentSeatsMin || plan.DependentSeats > familyDependentSeatsMax {
			return fmt.Errorf("%w: family plans require %d-%d dependent seats, got %d",
				ErrInvalidPlanParameters, familyDependentSeatsMin, familyDependentSeatsMax, plan.DependentSeats)
		}
	case models.LicenseTypeSchool:
		if plan.DependentSeats < schoolDependentSeatsMin {
			return fmt.Errorf("%w: school plans require at least %d dependent seats, got %d",
				ErrInvalidPlanParameters, schoolDependentSeatsMin, plan.DependentSeats)
		}
	case models.LicenseTypeUniversal:
		// no seat constraints; capacity is unlimited
	default:
		return fmt.Errorf("%w: unknown license type %q", ErrInvalidPlanParameters, licenseType)
	}
	return nil
}
