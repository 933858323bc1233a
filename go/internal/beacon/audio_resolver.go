package beacon

import (
	"io/fs"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultAudioExtensions is the lookup order for audio assets.
var DefaultAudioExtensions = []string{"mp3", "m4a", "mp4", "aac", "ogg", "wav"}

// AudioResolver finds the audio file that accompanies a sequence and memoizes the answer,
// including misses, for the lifetime of the process.
type AudioResolver struct {
	assets     fs.FS
	urlPrefix  string
	extensions []string

	mu    sync.Mutex
	cache map[string]string
}

// NewAudioResolver creates a resolver over assets. Matches are returned as
// urlPrefix + escaped file name.
func NewAudioResolver(assets fs.FS, urlPrefix string, extensions []string) *AudioResolver {
	if len(extensions) == 0 {
		extensions = DefaultAudioExtensions
	}
	return &AudioResolver{
		assets:     assets,
		urlPrefix:  urlPrefix,
		extensions: extensions,
		cache:      make(map[string]string),
	}
}

// Resolve returns the asset URL for base, or "" when no file matches.
func (r *AudioResolver) Resolve(base string) string {
	if base == "" {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if audioURL, ok := r.cache[base]; ok {
		return audioURL
	}

	audioURL := r.lookup(base)
	r.cache[base] = audioURL

	log.Debug().
		Str("track", base).
		Str("audio_url", audioURL).
		Msg("resolved audio asset")

	return audioURL
}

func (r *AudioResolver) lookup(base string) string {
	for _, ext := range r.extensions {
		name := base + "." + ext
		if !fs.ValidPath(name) {
			continue
		}
		info, err := fs.Stat(r.assets, name)
		if err != nil || info.IsDir() {
			continue
		}
		return r.urlPrefix + url.PathEscape(name)
	}
	return ""
}
