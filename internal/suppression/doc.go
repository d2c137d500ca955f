// Package suppression decides whether a candidate event duplicates one of the
// most recently accepted events by comparing label sets.
package suppression
