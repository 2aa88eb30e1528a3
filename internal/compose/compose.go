// Package compose fills agreement templates with lease values.
package compose

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"leasekeeper/internal/domain"
	"leasekeeper/internal/templates"
)

type field func(domain.LeaseCreationData) string

// Tokens maps placeholder names to the lease value they render.
var Tokens = map[string]field{
	"lease_id":       func(d domain.LeaseCreationData) string { return d.LeaseID },
	"property_name":  func(d domain.LeaseCreationData) string { return d.PropertyName },
	"farmer_name":    func(d domain.LeaseCreationData) string { return d.FarmerName },
	"growing_year":   func(d domain.LeaseCreationData) string { return year(d.GrowingYear) },
	"lease_type":     func(d domain.LeaseCreationData) string { return d.LeaseType },
	"start_date":     func(d domain.LeaseCreationData) string { return date(d.StartDate) },
	"end_date":       func(d domain.LeaseCreationData) string { return date(d.EndDate) },
	"rent_amount":    func(d domain.LeaseCreationData) string { return d.RentAmount.String() },
	"rent_frequency": func(d domain.LeaseCreationData) string { return string(d.RentFrequency) },
}

const (
	tokenOpen  = "{{"
	tokenClose = "}}"
)

// Compose inserts the lease header after the first top-level heading and
// substitutes known tokens. Unknown tokens are kept as written. The heading is
// located on the raw template, so substituted values never move the header.
func Compose(text string, data domain.LeaseCreationData, now time.Time) (string, error) {
	at, ok := headingEnd(text)
	if !ok {
		return "", &templates.Error{Kind: templates.ErrInvalidTemplate, Name: data.LeaseID, Err: fmt.Errorf("no top-level heading")}
	}
	head, body := text[:at], text[at:]
	if !strings.HasSuffix(head, "\n") {
		head += "\n"
	}
	return Substitute(head, data) + header(data, now) + Substitute(body, data), nil
}

// Substitute replaces every recognised {{token}} in text.
func Substitute(text string, data domain.LeaseCreationData) string {
	var b strings.Builder
	b.Grow(len(text))
	rest := text
	for {
		i := strings.Index(rest, tokenOpen)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		j := strings.Index(rest[i+len(tokenOpen):], tokenClose)
		if j < 0 {
			b.WriteString(rest)
			break
		}
		key := rest[i+len(tokenOpen) : i+len(tokenOpen)+j]
		end := i + len(tokenOpen) + j + len(tokenClose)
		b.WriteString(rest[:i])
		if fn, ok := Tokens[key]; ok {
			b.WriteString(fn(data))
		} else {
			b.WriteString(rest[i:end])
		}
		rest = rest[end:]
	}
	return b.String()
}

// headingEnd returns the offset just past the first line starting with "# ".
func headingEnd(text string) (int, bool) {
	off := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		off += len(line)
		if strings.HasPrefix(line, "# ") {
			return off, true
		}
	}
	return 0, false
}

func header(data domain.LeaseCreationData, now time.Time) string {
	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Lease ID: %s\n", data.LeaseID)
	fmt.Fprintf(&b, "- Property: %s\n", data.PropertyName)
	fmt.Fprintf(&b, "- Farmer: %s\n", data.FarmerName)
	fmt.Fprintf(&b, "- Created: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Growing Year: %s\n", year(data.GrowingYear))
	return b.String()
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}

func year(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}
