package strategy

import "strings"

// Group is an ordered list of selectors tried for matching hosts.
type Group struct {
	Name string `yaml:"name" json:"name"`
	// Hosts are substrings matched against the document host.
	Hosts     []string `yaml:"hosts" json:"hosts"`
	Selectors []string `yaml:"selectors" json:"selectors"`
}

// Table is the host pattern configuration.
type Table struct {
	Groups        []Group  `yaml:"groups" json:"groups"`
	Generic       Group    `yaml:"generic" json:"generic"`
	ExternalHosts []string `yaml:"external_hosts" json:"external_hosts"`
}

// Select returns the first group with a host pattern contained in host,
// else the generic group.
func (t Table) Select(host string) Group {
	host = strings.ToLower(host)
	for _, g := range t.Groups {
		for _, h := range g.Hosts {
			if h != "" && strings.Contains(host, strings.ToLower(h)) {
				return g
			}
		}
	}
	return t.Generic
}

// Merge overlays o on t: groups in o replace groups of t with the same
// name and are otherwise appended; non-empty generic selectors and
// external hosts replace t's.
func (t Table) Merge(o Table) Table {
	out := Table{
		Groups:        append([]Group(nil), t.Groups...),
		Generic:       t.Generic,
		ExternalHosts: t.ExternalHosts,
	}
	for _, g := range o.Groups {
		replaced := false
		for i := range out.Groups {
			if out.Groups[i].Name == g.Name {
				out.Groups[i] = g
				replaced = true
				break
			}
		}
		if !replaced {
			out.Groups = append(out.Groups, g)
		}
	}
	if len(o.Generic.Selectors) > 0 {
		out.Generic = o.Generic
		if out.Generic.Name == "" {
			out.Generic.Name = GenericName
		}
	}
	if len(o.ExternalHosts) > 0 {
		out.ExternalHosts = o.ExternalHosts
	}
	return out
}

// GenericName names the fallback group.
const GenericName = "generic"

// DefaultTable is the built-in table covering the common player libraries
// (Video.js, JW Player, Plyr, DPlayer, Flowplayer, Clappr) and the embed
// hosts seen on streaming catalogues.
func DefaultTable() Table {
	return Table{
		Groups: []Group{
			{
				Name:  "altadefinizione",
				Hosts: []string{"altadefinizione"},
				Selectors: []string{
					".video-js video",
					".vjs-tech",
					".vjs-html5-video",
					"video.vjs-tech",
					"#vjs_video_3_html5_api",
					"#player video",
					".player video",
					".player-container video",
					".video-player-container video",
					"#video-container video",
					".video-container video",
					".jwplayer video",
					".jw-video video",
					".jw-media video",
					".jwplayer .jw-video",
					".plyr video",
					".plyr__video",
					".plyr__video-wrapper video",
					".dplayer-video",
					".flowplayer video",
					".fp-engine",
					`video[src*=".mp4"]`,
					`video[src*=".m3u8"]`,
					`video[src*=".webm"]`,
					"video[data-setup]",
					"video[controls]",
					"video[autoplay]",
					`iframe[src*="player"]`,
					`iframe[src*="embed"]`,
					`iframe[src*="/e/"]`,
					".ratio iframe",
					`iframe[src*="https://streamtape.com/e/"]`,
					`iframe[src*="https://voe.sx/e/"]`,
					`iframe[src*="https://filemoon.sx/e/"]`,
					`iframe[src*="https://vidhidepro.com/e/"]`,
				},
			},
			{
				Name:  "streamingcommunity",
				Hosts: []string{"streamingcommunity", "streamingunity"},
				Selectors: []string{
					".plyr video",
					".plyr__video",
					".plyr__video-wrapper video",
					".plyr-container video",
					".plyr__video-embed video",
					".video-js video",
					".vjs-tech",
					"video.vjs-tech",
					".player-container video",
					".video-player-container video",
					"#video-container video",
					".streaming-player video",
					".sc-player video",
					"#player video",
					".embed-player video",
					".jwplayer video",
					".jw-video video",
					".jw-media video",
					".dplayer-video",
					".flowplayer video",
					".clappr-container video",
					`video[src*=".m3u8"]`,
					`video[src*=".mp4"]`,
					"video[data-src]",
					"video[controls]",
					"video[autoplay]",
					"video[preload]",
					`iframe[src*="player"]`,
					`iframe[src*="embed"]`,
					`iframe[src*="stream"]`,
					`iframe[src*="/e/"]`,
					".ratio iframe",
					`iframe[src*="https://vidhidepro.com/e/"]`,
					`iframe[src*="https://d0001.stream/e/"]`,
					`iframe[src*="https://watchvideo.us/e/"]`,
				},
			},
		},
		Generic: Group{
			Name: GenericName,
			Selectors: []string{
				"video",
				"video[src]",
				"video[currentSrc]",
				"video[data-setup]",
				".video-js video",
				"video.jw-video",
				".jw-video",
				`div[data-player-type="plyr"] video`,
				".plyr__video",
				`iframe[src*="player.vimeo.com"]`,
				`iframe[src*="youtube.com/embed"]`,
				`iframe[src*="player.twitch.tv"]`,
				`iframe[src*="ok.ru/videoembed"]`,
				`iframe[src*="mixdrop.co/e"]`,
				`iframe[src*="streamtape.com/e"]`,
				`iframe[src*="voe.sx/e"]`,
				`iframe[src*="fembed.com/v/"]`,
				`iframe[src*="filemoon.sx/e/"]`,
				`iframe[src*="/e/"]`,
				`div[id*="player"] video`,
				`div[class*="player"] video`,
				`iframe[src*="vidhidepro.com"]`,
				`iframe[src*="watchvideo.us"]`,
				`iframe[src*="d0001.stream"]`,
			},
		},
		ExternalHosts: []string{
			"dropload.io",
			"vixcloud.co",
			"vidhidepro.com",
			"filemoon.sx",
			"upstream.to",
			"streamtape.com",
			"mixdrop.co",
			"voe.sx",
		},
	}
}
