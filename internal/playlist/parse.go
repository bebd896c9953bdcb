package playlist

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/grafov/m3u8"
	hlsm3u8 "github.com/mogiioin/hls-m3u8/m3u8"
	"github.com/pkg/errors"
)

// ParseError means the manifest text could not be understood.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse playlist: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNoHeader = errors.New("#EXTM3U absent")

// Digest is the change-detection hash of raw manifest bytes.
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Parse decodes a master or media playlist. URIs are left as written; see
// ResolveReferences.
func Parse(data []byte) (Playlist, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("#EXTM3U")) {
		return nil, &ParseError{Err: errNoHeader}
	}
	p, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	switch listType {
	case m3u8.MASTER:
		// grafov hands EXT-X-MEDIA to variants by position and skips the
		// session tags, so masters are decoded again to get both.
		mp := hlsm3u8.NewMasterPlaylist()
		if err := mp.DecodeFrom(bytes.NewReader(data), false); err != nil {
			return nil, &ParseError{Err: err}
		}
		return newMaster(mp), nil
	case m3u8.MEDIA:
		return newMedia(p.(*m3u8.MediaPlaylist), data), nil
	}
	return nil, &ParseError{Err: errors.Errorf("playlist type %d", listType)}
}

func newMaster(p *hlsm3u8.MasterPlaylist) *Master {
	m := &Master{}
	for _, sd := range p.SessionDatas {
		if sd == nil {
			continue
		}
		m.SessionData = append(m.SessionData, &SessionData{
			DataID:   sd.DataId,
			Value:    sd.Value,
			URI:      sd.URI,
			Format:   sd.Format,
			Language: sd.Language,
		})
	}
	for _, k := range p.SessionKeys {
		if k == nil {
			continue
		}
		m.SessionKeys = append(m.SessionKeys, &Key{
			Method:            k.Method,
			URI:               k.URI,
			IV:                k.IV,
			KeyFormat:         k.Keyformat,
			KeyFormatVersions: k.Keyformatversions,
		})
	}
	for _, v := range p.Variants {
		if v == nil {
			continue
		}
		variant := &Variant{
			URI:              v.URI,
			Bandwidth:        v.Bandwidth,
			AverageBandwidth: v.AverageBandwidth,
			Codecs:           v.Codecs,
			Resolution:       v.Resolution,
			FrameRate:        v.FrameRate,
			Name:             v.Name,
		}
		// Alternatives are already matched to the variant by group.
		groups := make(map[RenditionType][]*Rendition)
		for _, alt := range v.Alternatives {
			if alt == nil {
				continue
			}
			t := RenditionType(strings.ToUpper(alt.Type))
			groups[t] = append(groups[t], &Rendition{
				Type:       t,
				URI:        alt.URI,
				GroupID:    alt.GroupId,
				Name:       alt.Name,
				Language:   alt.Language,
				Default:    alt.Default,
				Autoselect: alt.Autoselect,
			})
		}
		for _, t := range RenditionTypes {
			variant.setRenditions(t, groups[t])
		}
		m.Variants = append(m.Variants, variant)
	}
	return m
}

func newMedia(p *m3u8.MediaPlaylist, data []byte) *Media {
	m := &Media{
		TargetDuration: p.TargetDuration,
		MediaSequence:  p.SeqNo,
		Endlist:        p.Closed,
	}
	switch p.MediaType {
	case m3u8.VOD:
		m.Type = TypeVOD
	case m3u8.EVENT:
		m.Type = TypeEvent
	}

	// EXT-X-KEY and EXT-X-MAP apply to every following segment, but are only
	// attached to the first one by the decoder.
	var key *m3u8.Key
	var mp *m3u8.Map

	// A sub-range without @offset starts where the previous sub-range of the
	// same resource ended. The decoder reports offset 0 for it instead.
	explicit := explicitOffsets(data)
	var (
		n       int
		prevURI string
		prevEnd int64
	)
	for _, seg := range p.Segments {
		if seg == nil {
			continue
		}
		br := byteRange(seg.Offset, seg.Limit)
		if br != nil {
			if n < len(explicit) && !explicit[n] && seg.URI == prevURI {
				br.Offset = prevEnd
			}
			prevURI, prevEnd = seg.URI, br.Offset+br.Length
		} else {
			prevURI, prevEnd = "", 0
		}
		n++

		if seg.Key != nil {
			key = seg.Key
		}
		if seg.Map != nil {
			mp = seg.Map
		}
		s := &Segment{
			URI:            seg.URI,
			Duration:       seg.Duration,
			Title:          seg.Title,
			SequenceNumber: seg.SeqId,
			Discontinuity:  seg.Discontinuity,
			ByteRange:      br,
		}
		if key != nil && key.Method != "" && key.Method != "NONE" {
			s.Key = &Key{
				Method:            key.Method,
				URI:               key.URI,
				IV:                key.IV,
				KeyFormat:         key.Keyformat,
				KeyFormatVersions: key.Keyformatversions,
			}
		}
		if mp != nil && mp.URI != "" {
			s.Map = &Map{
				URI:       mp.URI,
				ByteRange: byteRange(mp.Offset, mp.Limit),
			}
		}
		m.Segments = append(m.Segments, s)
	}
	return m
}

func byteRange(offset, limit int64) *ByteRange {
	if limit <= 0 {
		return nil
	}
	return &ByteRange{Offset: offset, Length: limit}
}

const tagByteRange = "#EXT-X-BYTERANGE:"

// explicitOffsets reports, for each segment of a media playlist in order,
// whether its EXT-X-BYTERANGE carried an @offset. Segments without a byte
// range count as explicit.
func explicitOffsets(data []byte) []bool {
	var out []bool
	inf, explicit := false, true
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXTINF:"):
			inf = true
		case strings.HasPrefix(line, tagByteRange):
			explicit = strings.Contains(line[len(tagByteRange):], "@")
		case strings.HasPrefix(line, "#"):
		case inf:
			out = append(out, explicit)
			inf, explicit = false, true
		}
	}
	return out
}
