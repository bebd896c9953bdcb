package reader

import (
	"time"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/fetch"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/loader"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/playlist"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/uri"
	"golang.org/x/exp/slices"
)

// loadPlaylist fetches a playlist, bypassing the cache, unless a load of the
// same location is already in flight.
func (r *Reader) loadPlaylist(location, parent string) {
	if _, ok := r.loading[location]; ok {
		return
	}
	r.loading[location] = struct{}{}
	r.load(location, loader.Options{BypassCache: true}, func(c *fetch.Content, err error) {
		delete(r.loading, location)
		r.updatePlaylist(location, parent, c, err)
		r.checkEnded()
	})
}

// followPlaylist starts tracking a media playlist referenced by a master.
func (r *Reader) followPlaylist(location, parent string) {
	if _, ok := r.medias[location]; ok {
		return
	}
	r.track(location, nil)
	r.loadPlaylist(location, parent)
}

func (r *Reader) updatePlaylist(location, parent string, c *fetch.Content, err error) {
	log := r.log.WithField("location", location)
	if err != nil {
		r.publishError(location, err)
		if r.loaded(location) {
			r.reschedule(location, parent, r.pollInterval(location))
		} else {
			r.forget(location, parent)
		}
		return
	}

	hash := playlist.Digest(c.Data)
	if r.unchanged(location, parent, hash) {
		log.Trace("unchanged")
		return
	}

	p, err := playlist.Parse(c.Data)
	if err == nil {
		h := p.Head()
		h.URI = location
		h.ParentURI = parent
		h.ContentHash = hash
		h.Source = string(c.Data)
		resolve := func(ref string) (string, error) {
			return uri.Resolve(location, ref, r.cfg.RootPath)
		}
		switch p := p.(type) {
		case *playlist.Master:
			err = p.ResolveReferences(resolve)
		case *playlist.Media:
			err = p.ResolveReferences(resolve)
		}
	}
	if err != nil {
		r.publishError(location, err)
		r.forget(location, parent)
		return
	}

	switch p := p.(type) {
	case *playlist.Master:
		r.updateMaster(p)
	case *playlist.Media:
		r.updateMedia(p)
	}
}

func (r *Reader) loaded(location string) bool {
	if _, ok := r.masters[location]; ok {
		return true
	}
	return r.medias[location] != nil
}

// forget stops following a playlist that failed before it was ever usable
// or whose update could not be parsed. The parent master picks it up again on
// its next revision.
func (r *Reader) forget(location, parent string) {
	delete(r.masters, location)
	delete(r.variants, location)
	r.untrack(location)
	for _, f := range r.variants[parent] {
		if i := slices.Index(f.playlists, location); i >= 0 {
			f.playlists = slices.Delete(f.playlists, i, i+1)
			f.stale = true
		}
	}
}

func (r *Reader) hasStale(master string) bool {
	for _, f := range r.variants[master] {
		if f.stale {
			return true
		}
	}
	return false
}

func (r *Reader) pollInterval(location string) time.Duration {
	if p := r.medias[location]; p != nil {
		return seconds(p.TargetDuration)
	}
	return r.cfg.MasterPollInterval
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func (r *Reader) reschedule(location, parent string, d time.Duration) {
	if p := r.medias[location]; p != nil && p.Terminal() {
		return
	}
	if _, ok := r.masters[location]; ok && !r.needsReload() {
		return
	}
	r.schedule(location, d, func() {
		r.loadPlaylist(location, parent)
	})
}

// unchanged reports whether hash matches the last revision of location, in
// which case a retry is queued at half the usual interval for media
// playlists.
func (r *Reader) unchanged(location, parent, hash string) bool {
	var d time.Duration
	if m, ok := r.masters[location]; ok && m.ContentHash == hash {
		d = r.cfg.MasterPollInterval
		if r.hasStale(location) {
			if err := r.reconcileVariants(m); err != nil {
				r.fail(err)
				return true
			}
		}
	} else if p := r.medias[location]; p != nil && p.ContentHash == hash {
		d = seconds(p.TargetDuration) / 2
	} else {
		return false
	}
	r.reschedule(location, parent, d)
	return true
}
