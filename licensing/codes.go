package licensing

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Code prefixes per variant, kept short so codes remain typeable from a
// welcome email.
const (
	familyCodePrefix    = "FAM"
	schoolCodePrefix    = "SCH"
	universalCodePrefix = "UNI"
	subSeatCodePrefix   = "SEAT"
)

// newLicenseCode generates a license code with a high-entropy suffix.
// A uuid supplies 122 random bits, so collisions are negligible and the
// unique index on the code field is only a backstop.
func newLicenseCode(licenseType string) string {
	prefix := universalCodePrefix
	switch licenseType {
	case "family":
		prefix = familyCodePrefix
	case "school":
		prefix = schoolCodePrefix
	}
	return fmt.Sprintf("%s-%s", prefix, randomSuffix(12))
}

// newSubSeatCode generates one redeemable sub-seat code, independently unique
// from its parent license code
func newSubSeatCode(position int) string {
	return fmt.Sprintf("%s%d-%s", subSeatCodePrefix, position+1, randomSuffix(8))
}

func randomSuffix(n int) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	if n > len(hex) {
		n = len(hex)
	}
	return hex[:n]
}
