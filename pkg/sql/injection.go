package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value that libinjection flagged.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Name        string // What was being checked (identifier, rule value, ...)
	Value       string
}

// CheckParameterForInjection runs libinjection over a value that is about to
// be placed in generated SQL, either as a quoted identifier or as a bound
// literal taken from configuration.
//
// Returns nil if no injection is detected.
//
// Example:
//
//	result := CheckParameterForInjection("identifier", "customers")
//	// result == nil
//
//	result := CheckParameterForInjection("identifier", "x'; DROP TABLE users--")
//	// result.IsSQLi == true
func CheckParameterForInjection(name, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Name:        name,
		Value:       value,
	}
}
