package logger

import "strings"

// RedactEmail masks the local part of an address, keeping the first two
// characters and the domain: "booker@studio.fm" → "bo***@studio.fm".
// Local parts of two characters or fewer are fully masked. Anything that
// does not look like an address becomes "***@***".
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
