// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pii detects personally identifiable information in text. Each
// entity pairs a candidate pattern with a validator (checksums, range
// checks) so bare digit runs do not flood redaction with false positives.
package pii

import (
	"net"
	"regexp"
	"sort"
	"strings"
)

// Entity identifies a PII category.
type Entity string

const (
	EmailAddress Entity = "EMAIL_ADDRESS"
	PhoneNumber  Entity = "PHONE_NUMBER"
	CreditCard   Entity = "CREDIT_CARD"
	IBANCode     Entity = "IBAN_CODE"
	IPAddress    Entity = "IP_ADDRESS"
	USSSN        Entity = "US_SSN"
	CryptoWallet Entity = "CRYPTO"
)

// Description returns the human-readable singular name used in
// notifications.
func (e Entity) Description() string {
	switch e {
	case EmailAddress:
		return "email address"
	case PhoneNumber:
		return "phone number"
	case CreditCard:
		return "credit card number"
	case IBANCode:
		return "IBAN"
	case IPAddress:
		return "IP address"
	case USSSN:
		return "social security number"
	case CryptoWallet:
		return "crypto wallet address"
	default:
		return strings.ToLower(string(e))
	}
}

// Finding is one detected PII value with byte offsets into the scanned
// text.
type Finding struct {
	Entity Entity
	Value  string
	Start  int
	End    int
}

type detector struct {
	entity   Entity
	re       *regexp.Regexp
	validate func(string) bool
}

// Analyzer runs the built-in detector set. It is stateless and safe for
// concurrent use.
type Analyzer struct {
	detectors []detector
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{detectors: []detector{
		{
			entity: EmailAddress,
			re:     regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		},
		{
			// E.164 international form.
			entity: PhoneNumber,
			re:     regexp.MustCompile(`\+\d{7,14}\b`),
		},
		{
			// Separated national form. The mandatory separator after the
			// area code keeps plain digit runs out.
			entity: PhoneNumber,
			re:     regexp.MustCompile(`(?:\(\d{2,4}\)|\b\d{2,4})[-. ]\d{3,4}[-. ]?\d{3,4}\b`),
		},
		{
			entity:   CreditCard,
			re:       regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`),
			validate: validCreditCard,
		},
		{
			// Compact form or the print form grouped in fours. Per-character
			// optional spaces would let the match run into a following word.
			entity:   IBANCode,
			re:       regexp.MustCompile(`\b[A-Z]{2}\d{2}(?:[A-Z0-9]{11,30}|(?: [A-Z0-9]{4}){2,7}(?: [A-Z0-9]{1,4})?)\b`),
			validate: validIBAN,
		},
		{
			entity:   IPAddress,
			re:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			validate: validIP,
		},
		{
			entity:   IPAddress,
			re:       regexp.MustCompile(`\b(?:[0-9a-fA-F]{0,4}:){2,7}[0-9a-fA-F]{1,4}\b`),
			validate: validIP,
		},
		{
			entity:   USSSN,
			re:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			validate: validSSN,
		},
		{
			entity: CryptoWallet,
			re:     regexp.MustCompile(`\b(?:bc1[a-zA-HJ-NP-Z0-9]{25,39}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`),
		},
	}}
}

// Analyze returns every finding in text sorted by position, overlaps
// collapsed to the earliest (longest on ties).
func (a *Analyzer) Analyze(text string) []Finding {
	var findings []Finding
	for _, d := range a.detectors {
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if d.validate != nil && !d.validate(value) {
				continue
			}
			findings = append(findings, Finding{
				Entity: d.entity,
				Value:  value,
				Start:  loc[0],
				End:    loc[1],
			})
		}
	}
	if len(findings) == 0 {
		return nil
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		return findings[i].End > findings[j].End
	})

	out := findings[:1]
	for _, f := range findings[1:] {
		if f.Start < out[len(out)-1].End {
			continue
		}
		out = append(out, f)
	}
	return out
}

func validCreditCard(value string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, value)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhnValid(digits)
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validIBAN(value string) bool {
	iban := strings.ReplaceAll(value, " ", "")
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	// ISO 13616: move the country/check prefix to the end, map letters to
	// two-digit numbers, and the whole number must be ≡ 1 (mod 97).
	rearranged := iban[4:] + iban[:4]
	rem := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			rem = (rem*100 + int(r-'A') + 10) % 97
		default:
			return false
		}
	}
	return rem == 1
}

func validIP(value string) bool {
	return net.ParseIP(value) != nil
}

func validSSN(value string) bool {
	area, group, serial := value[:3], value[4:6], value[7:]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if group == "00" || serial == "0000" {
		return false
	}
	return true
}
