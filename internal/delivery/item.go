package delivery

import "strings"

type Kind string

const (
	KindImage Kind = "image"
	KindOther Kind = "other"
)

// imageSuffixes is matched case-sensitively against the whole locator.
var imageSuffixes = []string{".jpg", ".jpeg", ".png"}

// Item is a candidate post: a locator plus its label (title).
type Item struct {
	Locator string
	Label   string
}

func (i Item) Kind() Kind {
	if IsImage(i.Locator) {
		return KindImage
	}
	return KindOther
}

func IsImage(locator string) bool {
	if locator == "" {
		return false
	}
	for _, s := range imageSuffixes {
		if strings.HasSuffix(locator, s) {
			return true
		}
	}
	return false
}

// DefaultCaptionLimit is Telegram's safe caption length used when none is configured.
const DefaultCaptionLimit = 200

// Caption returns the first limit runes of label.
func Caption(label string, limit int) string {
	if limit <= 0 {
		limit = DefaultCaptionLimit
	}
	n := 0
	for i := range label {
		if n == limit {
			return label[:i]
		}
		n++
	}
	return label
}
