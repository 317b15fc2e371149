package thumbnail

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed images/*.png
var imagesFS embed.FS

// MediaType is the kind of record a thumbnail belongs to. It selects the
// default image served when a v2 request finds no thumbnail.
type MediaType string

const (
	MediaTypeImage MediaType = "IMAGE"
	MediaTypeSound MediaType = "SOUND"
	MediaTypeVideo MediaType = "VIDEO"
	MediaTypeText  MediaType = "TEXT"
	MediaType3D    MediaType = "3D"
)

var mediaTypes = []MediaType{MediaTypeImage, MediaTypeSound, MediaTypeVideo, MediaTypeText, MediaType3D}

// ParseMediaType maps a type query parameter to a MediaType. Unknown and
// empty values are IMAGE.
func ParseMediaType(s string) MediaType {
	t := MediaType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range mediaTypes {
		if t == known {
			return t
		}
	}
	return MediaTypeImage
}

// DefaultImages holds the PNG served for each MediaType on a v2 miss.
type DefaultImages map[MediaType][]byte

// LoadDefaultImages reads the default images embedded in the binary.
func LoadDefaultImages() (DefaultImages, error) {
	images := make(DefaultImages, len(mediaTypes))
	for _, t := range mediaTypes {
		name := "images/EU_thumbnails_" + strings.ToLower(string(t)) + ".png"
		data, err := imagesFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read default image %s: %w", name, err)
		}
		images[t] = data
	}
	return images, nil
}

// Get returns the image for t, or the IMAGE default when t has none.
func (d DefaultImages) Get(t MediaType) []byte {
	if data, ok := d[t]; ok {
		return data
	}
	return d[MediaTypeImage]
}
