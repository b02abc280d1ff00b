// Package classify labels raw user input and derives cache identity keys.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/plateful/plateful/internal/model"
)

// minInputLength is the minimum meaningful submission length.
const minInputLength = 5

// maxURLLines: a pasted URL plus stray whitespace never spans more than a
// few lines; anything longer is treated as recipe text.
const maxURLLines = 3

var (
	schemeRe     = regexp.MustCompile(`(?i)^https?://\S+$`)
	bareDomainRe = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9.-]*\.[a-z]{2,}(/[^\s]*)?(\?[^\s]*)?(#[^\s]*)?$`)
	alnumRe      = regexp.MustCompile(`[a-zA-Z0-9]`)
)

// videoHosts lists platforms whose pages need a transcript-oriented scrape
// strategy rather than an article read.
var videoHosts = []string{
	"youtube.com",
	"youtu.be",
	"tiktok.com",
	"instagram.com",
	"facebook.com/reel",
	"vimeo.com",
}

// Classify labels raw text input. Image inputs never pass through here;
// they arrive pre-tagged by the transport layer.
func Classify(raw string) model.InputKind {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < minInputLength {
		return model.KindInvalid
	}
	if !alnumRe.MatchString(trimmed) {
		return model.KindInvalid
	}

	lines := strings.Count(trimmed, "\n") + 1

	if schemeRe.MatchString(trimmed) {
		if isVideoHost(trimmed) {
			return model.KindVideo
		}
		return model.KindURL
	}

	if lines <= maxURLLines && bareDomainRe.MatchString(trimmed) {
		if isVideoHost(trimmed) {
			return model.KindVideo
		}
		return model.KindURL
	}

	return model.KindRawText
}

// MatchesMode reports whether a classified kind is acceptable for the
// active input mode ("url" field vs "name" field). Callers reject a
// mismatch as a validation error rather than silently reclassifying.
func MatchesMode(kind model.InputKind, mode string) bool {
	switch mode {
	case "url":
		return kind == model.KindURL || kind == model.KindVideo
	case "name":
		return kind == model.KindRawText
	default:
		return kind != model.KindInvalid
	}
}

func isVideoHost(s string) bool {
	lower := strings.ToLower(s)
	lower = strings.TrimPrefix(lower, "https://")
	lower = strings.TrimPrefix(lower, "http://")
	lower = strings.TrimPrefix(lower, "www.")
	for _, h := range videoHosts {
		if strings.HasPrefix(lower, h) {
			return true
		}
	}
	return false
}

// HashPages derives a content-hash sourceKey for image submissions: sha256
// over all page bytes concatenated in page order.
func HashPages(pages [][]byte) string {
	h := sha256.New()
	for _, p := range pages {
		h.Write(p)
	}
	return "img:" + hex.EncodeToString(h.Sum(nil))
}
