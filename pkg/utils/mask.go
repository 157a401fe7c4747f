package utils

import "strings"

// MaskIdentifier keeps the first and last three characters of a BVN or NIN.
func MaskIdentifier(v string) string {
	if len(v) <= 6 {
		return strings.Repeat("*", len(v))
	}
	return v[:3] + "****" + v[len(v)-3:]
}

// MaskAccountNumber shows only the last four digits.
func MaskAccountNumber(v string) string {
	if len(v) <= 4 {
		return v
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

func MaskEmail(v string) string {
	at := strings.LastIndex(v, "@")
	if at <= 1 {
		return v
	}
	return v[:1] + "***" + v[at:]
}
