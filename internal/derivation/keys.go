package derivation

import "fmt"

// AssetKind enumerates the derived asset types a pipeline run can produce.
type AssetKind int

const (
	AssetVideo AssetKind = iota
	AssetAnimatedPreview
	AssetStillPreview
)

func (k AssetKind) String() string {
	switch k {
	case AssetVideo:
		return "video"
	case AssetAnimatedPreview:
		return "animated_preview"
	case AssetStillPreview:
		return "still_preview"
	default:
		return "unknown"
	}
}

// Derived file formats and suffix labels per kind.
const (
	animatedExt   = "gif"
	stillExt      = "png"
	animatedLabel = "preview"
	stillLabel    = "still"
)

// KeyStrategy maps a source object key to the destination key for one asset
// kind. Implementations are pure: the same (sourceKey, kind) always yields
// the same destination, so re-running a pipeline overwrites its own output.
// The replacement video always derives to the source key itself.
type KeyStrategy interface {
	Derive(sourceKey string, kind AssetKind) string
}

// NewKeyStrategy selects a convention by name.
func NewKeyStrategy(name, videosNamespace, thumbnailsNamespace string) (KeyStrategy, error) {
	switch name {
	case "sibling-suffix":
		return &SiblingSuffix{Videos: videosNamespace, Thumbnails: thumbnailsNamespace}, nil
	case "sibling-folder":
		return &SiblingFolder{Thumbnails: thumbnailsNamespace}, nil
	default:
		return nil, fmt.Errorf("unknown key strategy: %s", name)
	}
}

// SiblingSuffix rewrites the trailing extension to "-<label>.<ext>" and the
// first videos namespace segment to the thumbnails namespace.
type SiblingSuffix struct {
	Videos     string
	Thumbnails string
}

func (s *SiblingSuffix) Derive(sourceKey string, kind AssetKind) string {
	if kind == AssetVideo {
		return sourceKey
	}

	segments, rooted := splitKey(sourceKey)
	if len(segments) == 0 {
		return sourceKey
	}
	segments = replaceSegment(segments, s.Videos, s.Thumbnails)

	leaf := segments[len(segments)-1]
	label, ext := suffixFor(kind)
	segments[len(segments)-1] = fmt.Sprintf("%s-%s.%s", stemOf(leaf), label, ext)

	return joinKey(segments, rooted)
}

// SiblingFolder keeps the filename stem and inserts the thumbnails namespace
// segment immediately before it, swapping the extension to the derived
// format.
type SiblingFolder struct {
	Thumbnails string
}

func (s *SiblingFolder) Derive(sourceKey string, kind AssetKind) string {
	if kind == AssetVideo {
		return sourceKey
	}

	segments, rooted := splitKey(sourceKey)
	if len(segments) == 0 {
		return sourceKey
	}
	leaf := segments[len(segments)-1]
	_, ext := suffixFor(kind)
	segments[len(segments)-1] = fmt.Sprintf("%s.%s", stemOf(leaf), ext)

	return joinKey(insertBeforeLeaf(segments, s.Thumbnails), rooted)
}

func suffixFor(kind AssetKind) (label, ext string) {
	if kind == AssetStillPreview {
		return stillLabel, stillExt
	}
	return animatedLabel, animatedExt
}
