// Package utils provides utility functions for the application.
package utils

import (
	"fmt"
	"strings"
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCNowPtr returns a pointer to the current time in UTC
func UTCNowPtr() *time.Time {
	now := UTCNow()
	return &now
}

// ProviderTimeLayouts are the timestamp shapes seen in storefront and provisioner payloads
var ProviderTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
	"2006-01-02",
}

// ParseProviderTime parses a provider timestamp. Values without a zone are taken as UTC.
func ParseProviderTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range ProviderTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// ParseProviderTimePtr is ParseProviderTime returning nil instead of an error
func ParseProviderTimePtr(value string) *time.Time {
	t, err := ParseProviderTime(value)
	if err != nil {
		return nil
	}
	return &t
}
