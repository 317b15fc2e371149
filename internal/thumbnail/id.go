package thumbnail

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// ImageSize is a supported thumbnail width in pixels.
type ImageSize int

const (
	SizeMedium ImageSize = 200
	SizeLarge  ImageSize = 400
)

// Sizes lists the derived sizes generated for every upload, largest first.
var Sizes = []ImageSize{SizeLarge, SizeMedium}

// Tag returns the suffix used in storage keys for this size.
func (s ImageSize) Tag() string {
	return SizeTag(int(s))
}

// SizeTag maps a width to its storage key suffix. Only 200 maps to MEDIUM;
// every other width, including 0 for "not given", maps to LARGE.
func SizeTag(width int) string {
	if width == int(SizeMedium) {
		return "MEDIUM"
	}
	return "LARGE"
}

// HashURL returns the lowercase hex MD5 digest of sourceURL, the
// content-addressed id of its thumbnails.
func HashURL(sourceURL string) (string, error) {
	if sourceURL == "" {
		return "", ErrInvalidURL
	}

	sum := md5.Sum([]byte(sourceURL))
	return hex.EncodeToString(sum[:]), nil
}

// StorageKey composes the object key of the thumbnail with the given id and
// width, e.g. "7463a193a468a1ff1a0c0f7d5933e54b-LARGE".
func StorageKey(id string, width int) string {
	return id + "-" + SizeTag(width)
}

// WidthForKey returns the width encoded in a storage key.
func WidthForKey(key string) int {
	if strings.HasSuffix(key, "-"+SizeMedium.Tag()) {
		return int(SizeMedium)
	}
	return int(SizeLarge)
}
