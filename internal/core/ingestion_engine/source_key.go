package ingestion_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidURL is returned for submissions that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid url")

// CanonicalURL returns the source key of a web page: scheme and host lower
// cased, fragment dropped, empty path written as "/".
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

const hashPrefixLen = 16

// FileSourceKey hashes the file content and returns "<hash prefix>_<clean name>",
// so identical uploads share a key whatever they were called.
func FileSourceKey(filename string, r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return sum[:hashPrefixLen] + "_" + CleanFilename(filename), nil
}

// CleanFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with '_'.
func CleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// UploadObjectKey is where an uploaded file is stored.
func UploadObjectKey(sourceKey string) string {
	return "uploads/" + sourceKey
}
