package group

import (
	"fmt"
	"strings"
	"time"

	"carrental/internal/domain/shared/errkind"
	"carrental/internal/domain/user"
)

var ErrIneligible = fmt.Errorf("%w: you don't meet group requirements", errkind.ErrPolicyViolation)

type Eligibility struct {
	Eligible bool
	Reasons  []string
}

func (e Eligibility) Err() error {
	if e.Eligible {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrIneligible, strings.Join(e.Reasons, ", "))
}

// CheckEligibility evaluates every rule and reports all failing reasons.
// A missing date of birth does not fail the age rule.
func CheckEligibility(u *user.User, rules Rules, now time.Time) Eligibility {
	var reasons []string
	if rules.EmailVerified && !u.Verification.EmailVerified {
		reasons = append(reasons, "Email verification required")
	}
	if rules.PhoneVerified && !u.Verification.PhoneVerified {
		reasons = append(reasons, "Phone verification required")
	}
	if rules.LicenseRequired && !u.Verification.LicenseVerified {
		reasons = append(reasons, "Valid license required")
	}
	if rules.BackgroundCheckRequired && !u.Verification.BackgroundChecked {
		reasons = append(reasons, "Background check required")
	}
	if rules.MinimumAge > 0 && u.DateOfBirth != nil {
		if u.AgeAt(now) < rules.MinimumAge {
			reasons = append(reasons, fmt.Sprintf("Minimum age %d required", rules.MinimumAge))
		}
	}
	return Eligibility{Eligible: len(reasons) == 0, Reasons: reasons}
}
