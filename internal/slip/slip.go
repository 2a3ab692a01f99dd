// Package slip contains the pure text-matching logic for locating a bet on a
// sportsbook betslip page and for pulling a ticket number out of the
// confirmation page. Everything here operates on plain strings so the matching
// rules can be tested without a browser attached.
package slip

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	lineDigitsRe = regexp.MustCompile(`[^0-9.]`)
	ticketRe     = regexp.MustCompile(`(?i)ticket\s*#?\s*:?\s*(\d+)`)
)

// LineDigits strips everything but digits and decimal points from a bet type,
// leaving the numeric line portion ("Over 220.5" -> "220.5", "-3.5 Spread" ->
// "3.5"). Returns "" when the bet type carries no number at all.
func LineDigits(betType string) string {
	return lineDigitsRe.ReplaceAllString(betType, "")
}

// MatchValue reports whether a single input's visible value contains both the
// numeric line portion of betType and the stringified odds. The match is a
// plain substring test on each part, order-independent.
func MatchValue(value, betType string, odds int) bool {
	digits := LineDigits(betType)
	if digits == "" {
		return false
	}
	return strings.Contains(value, digits) && strings.Contains(value, strconv.Itoa(odds))
}

// FindValue returns the index of the first value (in DOM order) matching the
// bet. Multiple matches are a known imprecision; first wins.
func FindValue(values []string, betType string, odds int) (int, bool) {
	for i, v := range values {
		if MatchValue(v, betType, odds) {
			return i, true
		}
	}
	return -1, false
}

// ExtractTicketID scans full page text for a ticket number: the literal
// "Ticket" (any case), optionally followed by "#" and/or ":" and whitespace,
// then one or more digits. Returns the digits only.
func ExtractTicketID(pageText string) (string, bool) {
	m := ticketRe.FindStringSubmatch(pageText)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}
