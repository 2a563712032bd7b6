package payments

import (
	"fmt"
	"strings"
)

// NormalizePhone converts a Kenyan MSISDN to canonical 254... form.
// Accepts "07XXXXXXXX", "+2547XXXXXXXX", "2547XXXXXXXX" and bare local
// digits.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "+")

	if p == "" {
		return "", fmt.Errorf("empty phone number")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone number contains non-digits: %q", phone)
		}
	}

	switch {
	case strings.HasPrefix(p, "0"):
		p = "254" + p[1:]
	case !strings.HasPrefix(p, "254"):
		p = "254" + p
	}

	if len(p) != 12 {
		return "", fmt.Errorf("phone number has wrong length: %q", phone)
	}
	return p, nil
}
