package credential

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// credentialMarkers are lower-cased fragments of error messages that mean
// the key in use is rate limited, out of quota, suspended or rejected.
var credentialMarkers = []string{
	"quota",
	"rate limit",
	"429",
	"resource exhausted",
	"resource_exhausted",
	"limit exceeded",
	"suspended",
	"403",
	"permission denied",
	"permission_denied",
	"consumer_suspended",
	"forbidden",
}

// IsCredentialError reports whether err should move the rotator to the
// next key rather than fail the attempt outright.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusForbidden {
			return true
		}
		if matchesMarker(apiErr.Status) || matchesMarker(apiErr.Message) {
			return true
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		if apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Code == http.StatusForbidden {
			return true
		}
	}

	return matchesMarker(err.Error())
}

func matchesMarker(msg string) bool {
	if msg == "" {
		return false
	}
	msg = strings.ToLower(msg)
	for _, m := range credentialMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
