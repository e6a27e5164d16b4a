// Package filter restricts which currency pairs a grabber emits
package filter

import "sort"

// RateFilter holds optional allow-lists of base and destination codes.
// An empty list does not restrict anything.
type RateFilter struct {
	base        map[string]struct{}
	destination map[string]struct{}
}

// New creates a filter from base and destination code lists
func New(base, destination []string) RateFilter {
	return RateFilter{
		base:        toSet(base),
		destination: toSet(destination),
	}
}

// Pair creates a filter accepting exactly one currency pair
func Pair(base, destination string) RateFilter {
	return New([]string{base}, []string{destination})
}

// Accepts reports whether the pair passes both lists
func (f RateFilter) Accepts(base, destination string) bool {
	return allows(f.base, base) && allows(f.destination, destination)
}

// IsPair reports whether the filter is narrowed to a single pair
func (f RateFilter) IsPair() bool {
	return len(f.base) == 1 && len(f.destination) == 1
}

// BaseCodes returns the sorted base codes, nil when unrestricted
func (f RateFilter) BaseCodes() []string {
	return fromSet(f.base)
}

// DestinationCodes returns the sorted destination codes, nil when unrestricted
func (f RateFilter) DestinationCodes() []string {
	return fromSet(f.destination)
}

func allows(set map[string]struct{}, code string) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[code]
	return ok
}

func toSet(codes []string) map[string]struct{} {
	if len(codes) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

func fromSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	codes := make([]string, 0, len(set))
	for c := range set {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
