package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const defaultJPEGQuality = 90

// Processor turns an uploaded image into a thumbnail of a given width.
type Processor interface {
	// Process decodes data and returns it scaled to width, keeping the
	// aspect ratio, and encoded as ContentType.
	Process(data []byte, width int) ([]byte, error)

	// ContentType is the media type of every image Process returns.
	ContentType() string
}

// ImageProcessor implements Processor with the imaging library. Output is
// always JPEG and is a pure function of the input bytes and width.
type ImageProcessor struct {
	Quality int
}

// NewImageProcessor returns an ImageProcessor with the default JPEG quality.
func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{Quality: defaultJPEGQuality}
}

func (p *ImageProcessor) ContentType() string {
	return "image/jpeg"
}

func (p *ImageProcessor) Process(data []byte, width int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	if width <= 0 {
		return nil, fmt.Errorf("%w: invalid width %d", ErrProcessingFailed, width)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", ErrProcessingFailed, err)
	}

	// Small sources are scaled up as well; a thumbnail always has the
	// requested width.
	resized := imaging.Resize(img, width, 0, imaging.Lanczos)

	quality := p.Quality
	if quality <= 0 {
		quality = defaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("%w: failed to encode JPEG: %v", ErrProcessingFailed, err)
	}

	return buf.Bytes(), nil
}
