// Package classify decides whether an element is a usable media element or
// a decoy. Every predicate is pure and works on a media.Descriptor, so it can
// be exercised without a browser.
package classify

import (
	"math"
	"strings"

	"github.com/hazyhaar/skipper/media"
)

// IsMedia reports whether the descriptor names a video or audio element.
func IsMedia(d media.Descriptor) bool {
	tag := strings.ToLower(d.Tag)
	return tag == "video" || tag == "audio"
}

// IsUsable reports whether d has, or is acquiring, playable content.
func IsUsable(d media.Descriptor) bool {
	if !IsMedia(d) {
		return false
	}
	return d.Duration > 0 ||
		d.ReadyState > media.HaveNothing ||
		d.Src != "" ||
		d.CurrentSrc != "" ||
		d.HasSourceChild ||
		d.HasSetup ||
		IsLoading(d)
}

// IsLoading reports whether d is actively fetching data. It only decides
// whether to keep waiting instead of declaring failure.
func IsLoading(d media.Descriptor) bool {
	if !IsMedia(d) {
		return false
	}
	return d.NetworkState == media.NetworkLoading ||
		d.ReadyState >= media.HaveFutureData ||
		(d.Src != "" && !DurationKnown(d)) ||
		d.DataSrc != "" ||
		d.HasSourceChild
}

// DurationKnown reports a positive duration. Live streams report +Inf and
// count as known.
func DurationKnown(d media.Descriptor) bool {
	return d.Duration > 0 && !math.IsNaN(d.Duration)
}

// IsReady is the condition commands wait for before seeking.
func IsReady(d media.Descriptor) bool {
	return IsUsable(d) && (DurationKnown(d) || d.ReadyState >= media.HaveCurrentData)
}

// Alive reports whether a previously resolved element may stay bound.
func Alive(d media.Descriptor) bool {
	return d.Connected && IsUsable(d)
}
