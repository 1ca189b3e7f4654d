// Package vin validates Vehicle Identification Numbers.
package vin

import "regexp"

// Standard VINs are 17 characters over the uppercase alphanumerics,
// excluding I, O and Q (too easily confused with 1 and 0).
var pattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// Valid reports whether s is a well-formed VIN. Empty input is invalid.
// Pure and total.
func Valid(s string) bool {
	return pattern.MatchString(s)
}
