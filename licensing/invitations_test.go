package licensing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/classkeep/license-api/databases/mocks"
	"github.com/classkeep/license-api/licensing"
	"github.com/classkeep/license-api/models"
)

func TestMintAndValidateInvitation(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	lic := familyLicenseDoc()
	lic.Details.SubSeats[0].Status = models.SubSeatUsed
	lic.Details.SubSeats[0].UsedBy = "acct-guardian-1"

	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(lic, nil)

	invites := licensing.Invitations{Licenses: db}
	token, err := invites.MintInvitation(context.Background(), "FAM-ABCDEF123456", "acct-guardian-1")

	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := licensing.ValidateInvitation(token)
	assert.NoError(t, err)
	assert.Equal(t, "FAM-ABCDEF123456", claims.LicenseCode)
	assert.Equal(t, "acct-guardian-1", claims.GuardianID)
}

func TestMintInvitation_OnlyFirstClaimant(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	lic := familyLicenseDoc()
	lic.Details.SubSeats[0].Status = models.SubSeatUsed
	lic.Details.SubSeats[0].UsedBy = "acct-guardian-1"
	lic.Details.SubSeats[1].Status = models.SubSeatUsed
	lic.Details.SubSeats[1].UsedBy = "acct-guardian-2"

	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(lic, nil)

	invites := licensing.Invitations{Licenses: db}
	_, err := invites.MintInvitation(context.Background(), "FAM-ABCDEF123456", "acct-guardian-2")

	assert.ErrorIs(t, err, licensing.ErrNotFirstClaimant)
}

func TestMintInvitation_FamilyOnly(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	lic := familyLicenseDoc()
	lic.Details.LicenseType = models.LicenseTypeSchool
	lic.Details.SubSeats[0].Status = models.SubSeatUsed
	lic.Details.SubSeats[0].UsedBy = "acct-admin"

	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(lic, nil)

	invites := licensing.Invitations{Licenses: db}
	_, err := invites.MintInvitation(context.Background(), "FAM-ABCDEF123456", "acct-admin")

	assert.ErrorIs(t, err, licensing.ErrNotFirstClaimant)
}

func TestMintInvitation_InvalidLicense(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	lic := familyLicenseDoc()
	lic.Details.Status = models.LicenseStatusExpired

	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(lic, nil)

	invites := licensing.Invitations{Licenses: db}
	_, err := invites.MintInvitation(context.Background(), "FAM-ABCDEF123456", "acct-guardian-1")

	assert.ErrorIs(t, err, licensing.ErrLicenseInvalid)
}

func TestMintInvitation_UnknownLicense(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	invites := licensing.Invitations{Licenses: db}
	_, err := invites.MintInvitation(context.Background(), "FAM-MISSING00000", "acct-guardian-1")

	assert.ErrorIs(t, err, licensing.ErrLicenseNotFound)
}

func TestValidateInvitation_RejectsTampering(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	lic := familyLicenseDoc()
	lic.Details.SubSeats[0].Status = models.SubSeatUsed
	lic.Details.SubSeats[0].UsedBy = "acct-guardian-1"

	db := &mocks.LicenseDatabase{}
	db.On("FindOne", mock.Anything, mock.Anything).Return(lic, nil)

	invites := licensing.Invitations{Licenses: db}
	token, err := invites.MintInvitation(context.Background(), "FAM-ABCDEF123456", "acct-guardian-1")
	assert.NoError(t, err)

	t.Setenv("JWT_SECRET", "a-different-secret")
	_, err = licensing.ValidateInvitation(token)
	assert.ErrorIs(t, err, licensing.ErrInvalidInvitation)

	t.Setenv("JWT_SECRET", "test-secret")
	_, err = licensing.ValidateInvitation(token + "x")
	assert.ErrorIs(t, err, licensing.ErrInvalidInvitation)
}
