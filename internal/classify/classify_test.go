package classify

import (
	"math"
	"testing"

	"github.com/hazyhaar/skipper/media"
)

func TestIsUsable(t *testing.T) {
	tests := []struct {
		name string
		d    media.Descriptor
		want bool
	}{
		{"bare video", media.Descriptor{Tag: "video"}, false},
		{"div with duration", media.Descriptor{Tag: "div", Duration: 10}, false},
		{"duration", media.Descriptor{Tag: "video", Duration: 120}, true},
		{"ready state", media.Descriptor{Tag: "video", ReadyState: media.HaveMetadata}, true},
		{"src", media.Descriptor{Tag: "video", Src: "a.mp4"}, true},
		{"current src", media.Descriptor{Tag: "VIDEO", CurrentSrc: "blob:x"}, true},
		{"source child", media.Descriptor{Tag: "video", HasSourceChild: true}, true},
		{"setup marker", media.Descriptor{Tag: "video", HasSetup: true}, true},
		{"data-src only", media.Descriptor{Tag: "video", DataSrc: "lazy.mp4"}, true},
		{"network loading", media.Descriptor{Tag: "audio", NetworkState: media.NetworkLoading}, true},
		{"network idle", media.Descriptor{Tag: "audio", NetworkState: media.NetworkIdle}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUsable(tt.d); got != tt.want {
				t.Errorf("IsUsable(%+v) = %v, want %v", tt.d, got, tt.want)
			}
		})
	}
}

func TestIsLoading(t *testing.T) {
	tests := []struct {
		name string
		d    media.Descriptor
		want bool
	}{
		{"not media", media.Descriptor{Tag: "iframe", NetworkState: media.NetworkLoading}, false},
		{"network loading", media.Descriptor{Tag: "video", NetworkState: media.NetworkLoading}, true},
		{"future data", media.Descriptor{Tag: "video", ReadyState: media.HaveFutureData}, true},
		{"current data only", media.Descriptor{Tag: "video", ReadyState: media.HaveCurrentData}, false},
		{"src without duration", media.Descriptor{Tag: "video", Src: "a.mp4"}, true},
		{"src with duration", media.Descriptor{Tag: "video", Src: "a.mp4", Duration: 30}, false},
		{"data-src", media.Descriptor{Tag: "video", DataSrc: "a.mp4"}, true},
		{"source child", media.Descriptor{Tag: "video", HasSourceChild: true}, true},
		{"setup marker only", media.Descriptor{Tag: "video", HasSetup: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLoading(tt.d); got != tt.want {
				t.Errorf("IsLoading(%+v) = %v, want %v", tt.d, got, tt.want)
			}
		})
	}
}

func TestIsReady(t *testing.T) {
	if IsReady(media.Descriptor{Tag: "video", Src: "a.mp4"}) {
		t.Error("src only: should not be ready")
	}
	if !IsReady(media.Descriptor{Tag: "video", Src: "a.mp4", Duration: 60}) {
		t.Error("src + duration: should be ready")
	}
	if !IsReady(media.Descriptor{Tag: "video", ReadyState: media.HaveCurrentData}) {
		t.Error("HAVE_CURRENT_DATA: should be ready")
	}
	if !IsReady(media.Descriptor{Tag: "video", Duration: math.Inf(1)}) {
		t.Error("live stream: should be ready")
	}
}

func TestDurationKnown(t *testing.T) {
	if DurationKnown(media.Descriptor{Duration: math.NaN()}) {
		t.Error("NaN duration reported known")
	}
	if DurationKnown(media.Descriptor{}) {
		t.Error("zero duration reported known")
	}
	if !DurationKnown(media.Descriptor{Duration: math.Inf(1)}) {
		t.Error("+Inf duration should count as known")
	}
}

func TestAlive(t *testing.T) {
	d := media.Descriptor{Tag: "video", Duration: 10, Connected: true}
	if !Alive(d) {
		t.Error("connected usable element should be alive")
	}
	d.Connected = false
	if Alive(d) {
		t.Error("detached element should not be alive")
	}
}
