package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
)

// Schemes a remote media reference may use.
const (
	SchemeHTTP   = "http"
	SchemeHTTPS  = "https"
	SchemeAzBlob = "azblob"
)

// URLValidator checks remote media references before anything is fetched
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidator creates a validator accepting http, https and azblob
// references on any host
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{SchemeHTTP, SchemeHTTPS, SchemeAzBlob},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewURLValidatorWithOptions creates a URL validator with custom options.
// Host restrictions apply to http(s) references only; the host part of an
// azblob reference is a container name.
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			normalized = append(normalized, h)
		}
	}
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   normalized,
	}
}

// IsRemote reports whether ref names a remote object rather than a local path
func IsRemote(ref string) bool {
	scheme, _, ok := strings.Cut(strings.TrimSpace(ref), "://")
	return ok && scheme != "" && !strings.EqualFold(scheme, "file")
}

// ValidateRef validates a remote media reference and returns it parsed
func (v *URLValidator) ValidateRef(ref string) (*url.URL, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, apperrors.NewValidationError("Invalid URL format", err)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if !v.isSchemeAllowed(scheme) {
		return nil, apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if parsedURL.Host == "" {
		return nil, apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if scheme == SchemeAzBlob {
		if strings.Trim(parsedURL.Path, "/") == "" {
			return nil, apperrors.NewValidationError("Blob reference must name a blob", nil)
		}
		return parsedURL, nil
	}

	if !v.isHostAllowed(parsedURL.Hostname()) {
		return nil, apperrors.NewValidationError("URL host not allowed", nil)
	}

	return parsedURL, nil
}

// isSchemeAllowed checks if the URL scheme is in the allowed list
func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// isHostAllowed checks if the URL host is in the allowed list
// Returns true if no host restrictions are set (empty allowedHosts)
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, allowed := range v.allowedHosts {
		if host == allowed {
			return true
		}
	}
	return false
}
