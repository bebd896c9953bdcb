package reader

import (
	"encoding/json"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/fetch"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/loader"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/playlist"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

func (r *Reader) updateMaster(p *playlist.Master) {
	// A variant location can turn out to be another master.
	if _, ok := r.medias[p.URI]; ok {
		r.untrack(p.URI)
	}

	r.publishMaster(p)
	r.loadSessionData(p)
	r.loadSessionKeys(p)

	if err := r.reconcileVariants(p); err != nil {
		r.fail(err)
		return
	}
	r.masters[p.URI] = p

	if r.needsReload() {
		r.schedule(p.URI, r.cfg.MasterPollInterval, func() {
			r.loadPlaylist(p.URI, p.ParentURI)
		})
	}
}

func (r *Reader) publishMaster(p *playlist.Master) {
	if !p.Ready() {
		return
	}
	r.publish(Item{Kind: KindMaster, Master: p.Clone()})
}

func (r *Reader) loadSessionData(p *playlist.Master) {
	for _, sd := range p.SessionData {
		if sd.Value != "" || sd.URI == "" {
			continue
		}
		sd := sd
		raw := sd.Format == "RAW"
		r.load(sd.URI, loader.Options{ReadAsBinary: raw}, func(c *fetch.Content, err error) {
			if err != nil {
				r.publishError(sd.URI, err)
				return
			}
			if raw {
				sd.Data = c.Data
				sd.Fetched = true
				r.publishMaster(p)
				return
			}
			var v interface{}
			if err := json.Unmarshal(c.Data, &v); err != nil {
				r.log.WithError(err).WithField("location", sd.URI).Warn("session data is not JSON")
			} else {
				sd.Data = v
			}
			sd.Fetched = true
			r.publishMaster(p)
		})
	}
}

func (r *Reader) loadSessionKeys(p *playlist.Master) {
	for _, k := range p.SessionKeys {
		if !k.NeedsData() {
			continue
		}
		k := k
		r.load(k.URI, loader.Options{ReadAsBinary: true}, func(c *fetch.Content, err error) {
			if err != nil {
				r.publishError(k.URI, err)
				return
			}
			k.Data = c.Data
			r.publishMaster(p)
		})
	}
}

// follow is what one selected variant brought into the tree: the variant
// playlist and its selected renditions.
type follow struct {
	playlists []string
	// stale is set when one of playlists failed its first load. The next
	// revision selects renditions for the variant again.
	stale bool
}

func followedSet(follows map[string]*follow) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range follows {
		for _, loc := range f.playlists {
			out[loc] = struct{}{}
		}
	}
	return out
}

// reconcileVariants follows the selected variants of p and their renditions,
// and drops the ones an earlier revision followed that are now gone.
// Renditions are only selected for variants the last revision did not follow.
func (r *Reader) reconcileVariants(p *playlist.Master) error {
	if !r.fsm.Is(stateReading) {
		return errors.Wrapf(ErrInvalidState, "reconcile variants of %s in state %q", p.URI, r.fsm.Current())
	}
	log := r.log.WithField("location", p.URI)

	prev := r.variants[p.URI]
	next := make(map[string]*follow)
	var order []string
	for _, i := range r.variantIndices(p.Variants) {
		if i < 0 || i >= len(p.Variants) {
			log.Warnf("variant selector returned out of range index %d", i)
			continue
		}
		v := p.Variants[i]
		if _, ok := next[v.URI]; v.URI == "" || ok {
			continue
		}
		if f, ok := prev[v.URI]; ok && !f.stale {
			next[v.URI] = f
		} else {
			next[v.URI] = r.selectRenditionsOf(log, v)
		}
		order = append(order, v.URI)
	}

	had, keep := followedSet(prev), followedSet(next)
	for loc := range had {
		if _, ok := keep[loc]; !ok {
			log.WithField("playlist", loc).Debug("no longer listed")
			r.untrack(loc)
		}
	}
	for _, v := range order {
		for _, loc := range next[v].playlists {
			if _, ok := had[loc]; ok {
				continue
			}
			r.followPlaylist(loc, p.URI)
		}
	}
	r.variants[p.URI] = next
	return nil
}

func (r *Reader) selectRenditionsOf(log *logrus.Entry, v *playlist.Variant) *follow {
	f := &follow{playlists: []string{v.URI}}
	for _, t := range playlist.RenditionTypes {
		group := v.Renditions(t)
		if len(group) == 0 {
			continue
		}
		for _, j := range r.renditionIndices(t, group) {
			if j < 0 || j >= len(group) {
				log.Warnf("rendition selector returned out of range index %d", j)
				continue
			}
			if loc := group[j].URI; loc != "" && !slices.Contains(f.playlists, loc) {
				f.playlists = append(f.playlists, loc)
			}
		}
	}
	return f
}

func (r *Reader) variantIndices(variants []*playlist.Variant) []int {
	if r.selectVariants != nil {
		return r.selectVariants(variants)
	}
	return allIndices(len(variants))
}

func (r *Reader) renditionIndices(t playlist.RenditionType, group []*playlist.Rendition) []int {
	if r.selectRenditions != nil {
		return r.selectRenditions(t, group)
	}
	return allIndices(len(group))
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
