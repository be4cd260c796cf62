// Package mimetypes lists the upload types accepted in chats.
package mimetypes

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	ApplicationPDF MIME = "application/pdf"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"

	VideoMP4       MIME = "video/mp4"
	VideoQuickTime MIME = "video/quicktime"
)

// byExtension maps every accepted extension to the type its content must sniff as.
var byExtension = map[string]MIME{
	".jpeg": ImageJPEG,
	".jpg":  ImageJPEG,
	".png":  ImagePNG,
	".pdf":  ApplicationPDF,
	".mp4":  VideoMP4,
	".mov":  VideoQuickTime,
}

// ForExtension returns the expected type of a lower or upper case extension, with its dot.
func ForExtension(ext string) (MIME, bool) {
	m, ok := byExtension[strings.ToLower(ext)]
	return m, ok
}

// Matches reports whether the sniffed type is the expected one or one of its aliases.
// A more specific type of the same family also matches, video/x-m4v for video/mp4,
// while image/heic, although stored in an mp4 container, does not.
func Matches(detected *mimetype.MIME, expected MIME) bool {
	if detected == nil {
		return false
	}
	for m := detected; m != nil; m = m.Parent() {
		if !m.Is(string(expected)) {
			continue
		}
		return m == detected || family(detected.String()) == family(string(expected))
	}
	return false
}

func family(mime string) string {
	top, _, _ := strings.Cut(mime, "/")
	return strings.ToLower(strings.TrimSpace(top))
}
