package claims

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Submission is the structured form of a freeform claim intake, typically
// an email body or a markdown report forwarded by the intake portal.
type Submission struct {
	ClaimID       string   `json:"claim_id"`
	PolicyNumber  string   `json:"policy_number"`
	CustomerName  string   `json:"customer_name"`
	CustomerEmail string   `json:"customer_email"`
	CustomerPhone string   `json:"customer_phone"`
	IncidentDate  string   `json:"incident_date"`
	Subject       string   `json:"subject,omitempty"`
	Documents     []string `json:"documents"`
	Original      string   `json:"original_content"`
}

var (
	policyPattern  = regexp.MustCompile(`(?i)policy\s+number\s+is\s+([A-Z0-9-]+)`)
	fromPattern    = regexp.MustCompile(`From:\s*([^\n]+)`)
	subjectPattern = regexp.MustCompile(`Subject:\s*([^\n]+)`)
	phonePattern   = regexp.MustCompile(`(\d{3}[-.\s]?\d{3}[-.\s]?\d{4})`)
	attachPattern  = regexp.MustCompile(`-\s+([a-zA-Z0-9_.-]+\.(?:md|txt|pdf|jpg|png))`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\s+\d{1,2}(?:st|nd|rd|th)?(?:,\s*\d{4})?`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	}
)

// ParseSubmission normalizes a markdown or email-style submission into a
// Submission. Fields that cannot be extracted get sentinel values rather
// than failing the whole intake; only an empty body is an error.
func ParseSubmission(content string) (*Submission, error) {
	sanitized := strings.TrimSpace(content)
	if sanitized == "" {
		return nil, errors.New("claim submission is empty")
	}

	sub := &Submission{
		ClaimID:      newClaimID(time.Now()),
		PolicyNumber: "UNKNOWN",
		IncidentDate: "unknown",
		Original:     sanitized,
	}

	if m := policyPattern.FindStringSubmatch(sanitized); m != nil {
		sub.PolicyNumber = strings.ToUpper(m[1])
	}
	for _, p := range datePatterns {
		if m := p.FindString(sanitized); m != "" {
			sub.IncidentDate = m
			break
		}
	}

	sub.CustomerEmail = "unknown@example.com"
	if m := fromPattern.FindStringSubmatch(sanitized); m != nil {
		sub.CustomerEmail = strings.TrimSpace(m[1])
	}
	sub.CustomerName = nameFromEmail(sub.CustomerEmail)

	sub.CustomerPhone = "555-000-0000"
	if m := phonePattern.FindStringSubmatch(sanitized); m != nil {
		sub.CustomerPhone = m[1]
	}
	if m := subjectPattern.FindStringSubmatch(sanitized); m != nil {
		sub.Subject = strings.TrimSpace(m[1])
	}
	for _, m := range attachPattern.FindAllStringSubmatch(sanitized, -1) {
		sub.Documents = append(sub.Documents, m[1])
	}

	return sub, nil
}

// Context builds a fresh ClaimContext from the submission. Referenced
// documents start out missing; the intake portal marks them received as
// attachments are verified.
func (s *Submission) Context() (*ClaimContext, error) {
	cc, err := NewClaimContext(s.ClaimID)
	if err != nil {
		return nil, err
	}
	cc.MissingDocuments = sortedSet(s.Documents)
	return cc, nil
}

// newClaimID derives a CLM-YYYY-NNNNN identifier from the submission time.
func newClaimID(now time.Time) string {
	return fmt.Sprintf("CLM-%d-%05d", now.UTC().Year(), now.UTC().Unix()%100000)
}

// nameFromEmail guesses a display name from the local part of an address,
// "jane.doe@example.com" becoming "Jane Doe".
func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, p := range parts {
		runes := []rune(strings.ToLower(p))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
