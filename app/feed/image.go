package feed

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MinImageDimension is the smallest width or height, in pixels, an inline
// image may declare. Anything smaller is treated as an icon or tracking pixel.
const MinImageDimension = 100

// DefaultRejectedImages lists URL substrings that never make a good entry
// image.
var DefaultRejectedImages = []string{
	"wp-includes/images/smilies",
	"flattr-badge",
	"'+uri +'",
}

// ImageFinder guesses a representative image for an entry.
type ImageFinder struct {
	rejected []string
}

func NewImageFinder(extraRejected ...string) *ImageFinder {
	rejected := make([]string, 0, len(DefaultRejectedImages)+len(extraRejected))
	rejected = append(rejected, DefaultRejectedImages...)
	for _, pattern := range extraRejected {
		if pattern != "" {
			rejected = append(rejected, pattern)
		}
	}
	return &ImageFinder{rejected: rejected}
}

// FromLinks returns the href of the last link whose type mentions "image".
func (f *ImageFinder) FromLinks(links []RawLink) string {
	image := ""
	for _, link := range links {
		if strings.Contains(link.Type, "image") && link.Href != "" {
			image = link.Href
		}
	}
	return f.accept(image)
}

// FromContent returns the src of the first <img> in an HTML fragment.
func (f *ImageFinder) FromContent(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		slog.Debug("Failed to parse entry content for images", "error", err)
		return ""
	}

	img := doc.Find("img").First()
	if img.Length() == 0 {
		return ""
	}

	if f.tooSmall(img) {
		return ""
	}

	src, ok := img.Attr("src")
	if !ok {
		return ""
	}
	return f.accept(strings.TrimSpace(src))
}

func (f *ImageFinder) Rejected(image string) bool {
	for _, pattern := range f.rejected {
		if strings.Contains(image, pattern) {
			return true
		}
	}
	return false
}

// tooSmall reports whether both dimensions are declared and either is below
// MinImageDimension. Non-numeric values count as undeclared.
func (f *ImageFinder) tooSmall(img *goquery.Selection) bool {
	heightAttr, hasHeight := img.Attr("height")
	widthAttr, hasWidth := img.Attr("width")
	if !hasHeight || !hasWidth {
		return false
	}

	height, err := strconv.Atoi(strings.TrimSpace(heightAttr))
	if err != nil {
		return false
	}
	width, err := strconv.Atoi(strings.TrimSpace(widthAttr))
	if err != nil {
		return false
	}

	return height < MinImageDimension || width < MinImageDimension
}

func (f *ImageFinder) accept(image string) string {
	if image == "" || f.Rejected(image) {
		return ""
	}
	return image
}
