package licensing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/classkeep/license-api/databases"
	"github.com/classkeep/license-api/models"
)

const invitationTTL = 7 * 24 * time.Hour

// Invitations mints and validates dependent-invitation tokens. Only the
// first claimant of a multi-guardian family license may mint them; the
// capability derives from holding sub-seat position 0.
type Invitations struct {
	Licenses databases.LicenseDatabase
}

// InvitationClaims are the verified contents of an invitation token
type InvitationClaims struct {
	LicenseCode string `json:"licenseCode"`
	GuardianID  string `json:"guardianID"`
	jwt.RegisteredClaims
}

// MintInvitation returns a signed token a dependent can redeem to link
// themselves under the guardian. guardianID must hold the first-claimant
// capability on the license.
func (i Invitations) MintInvitation(ctx context.Context, licenseCode, guardianID string) (string, error) {
	lic, err := i.Licenses.FindOne(ctx, bson.M{"license.code": licenseCode})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrLicenseNotFound
		}
		return "", err
	}
	if !IsValid(lic.Details, time.Now()).Valid {
		return "", ErrLicenseInvalid
	}
	if lic.Details.LicenseType != models.LicenseTypeFamily {
		return "", fmt.Errorf("%w: invitations are only minted on family licenses", ErrNotFirstClaimant)
	}
	if FirstClaimantID(lic.Details) != guardianID {
		return "", ErrNotFirstClaimant
	}

	secret := []byte(os.Getenv("JWT_SECRET"))
	if len(secret) == 0 {
		return "", errors.New("JWT_SECRET is not set")
	}

	now := time.Now()
	claims := InvitationClaims{
		LicenseCode: licenseCode,
		GuardianID:  guardianID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   guardianID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(invitationTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateInvitation verifies a token and returns its claims
func ValidateInvitation(tokenString string) (*InvitationClaims, error) {
	secret := []byte(os.Getenv("JWT_SECRET"))
	if len(secret) == 0 {
		return nil, errors.New("JWT_SECRET is not set")
	}

	claims := &InvitationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidInvitation
	}
	return claims, nil
}
