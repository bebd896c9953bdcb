// Package playlist holds the normalized master/media playlist model handed to
// consumers, and turns manifest text into it.
package playlist

import (
	"io"
)

type Type int

const (
	TypeUnknown Type = iota
	TypeEvent
	TypeVOD
)

func (t Type) String() string {
	switch t {
	case TypeEvent:
		return "EVENT"
	case TypeVOD:
		return "VOD"
	}
	return ""
}

type RenditionType string

const (
	RenditionAudio          RenditionType = "AUDIO"
	RenditionVideo          RenditionType = "VIDEO"
	RenditionSubtitles      RenditionType = "SUBTITLES"
	RenditionClosedCaptions RenditionType = "CLOSED-CAPTIONS"
)

// RenditionTypes lists the rendition groups in the order they are visited.
var RenditionTypes = []RenditionType{
	RenditionAudio,
	RenditionVideo,
	RenditionSubtitles,
	RenditionClosedCaptions,
}

// Header is shared by both playlist kinds.
type Header struct {
	URI         string
	ParentURI   string
	ContentHash string
	Source      string
}

// Playlist is either *Master or *Media.
type Playlist interface {
	Head() *Header
	IsMaster() bool
}

type Master struct {
	Header
	Variants    []*Variant
	SessionData []*SessionData
	SessionKeys []*Key
}

func (p *Master) Head() *Header  { return &p.Header }
func (p *Master) IsMaster() bool { return true }

type Media struct {
	Header
	Type           Type
	Endlist        bool
	TargetDuration float64
	MediaSequence  uint64
	Segments       []*Segment
}

func (p *Media) Head() *Header  { return &p.Header }
func (p *Media) IsMaster() bool { return false }

// Terminal reports whether the playlist can no longer change.
func (p *Media) Terminal() bool {
	return p.Type == TypeVOD || p.Endlist
}

type Variant struct {
	URI              string
	Bandwidth        uint32
	AverageBandwidth uint32
	Codecs           string
	Resolution       string
	FrameRate        float64
	Name             string

	Audio          []*Rendition
	Video          []*Rendition
	Subtitles      []*Rendition
	ClosedCaptions []*Rendition
}

// Renditions returns the group of the given type.
func (v *Variant) Renditions(t RenditionType) []*Rendition {
	switch t {
	case RenditionAudio:
		return v.Audio
	case RenditionVideo:
		return v.Video
	case RenditionSubtitles:
		return v.Subtitles
	case RenditionClosedCaptions:
		return v.ClosedCaptions
	}
	return nil
}

func (v *Variant) setRenditions(t RenditionType, r []*Rendition) {
	switch t {
	case RenditionAudio:
		v.Audio = r
	case RenditionVideo:
		v.Video = r
	case RenditionSubtitles:
		v.Subtitles = r
	case RenditionClosedCaptions:
		v.ClosedCaptions = r
	}
}

type Rendition struct {
	Type       RenditionType
	URI        string
	GroupID    string
	Name       string
	Language   string
	Default    bool
	Autoselect bool
}

type ByteRange struct {
	Offset int64
	// Length < 0 means to the end of the resource.
	Length int64
}

// Trim returns the part of data the range selects.
func (br *ByteRange) Trim(data []byte) []byte {
	if br == nil {
		return data
	}
	start := br.Offset
	if start < 0 || start > int64(len(data)) {
		start = int64(len(data))
	}
	end := int64(len(data))
	if br.Length >= 0 && start+br.Length < end {
		end = start + br.Length
	}
	return data[start:end]
}

type Key struct {
	Method            string
	URI               string
	IV                string
	KeyFormat         string
	KeyFormatVersions string
	Data              []byte
}

// NeedsData reports whether the key refers to material that must be fetched.
func (k *Key) NeedsData() bool {
	return k != nil && k.URI != "" && k.Method != "NONE"
}

func (k *Key) resolved() bool {
	return !k.NeedsData() || k.Data != nil
}

type Map struct {
	URI       string
	ByteRange *ByteRange
	Data      []byte
	MimeType  string
}

type Segment struct {
	URI            string
	Duration       float64
	Title          string
	SequenceNumber uint64
	Discontinuity  bool
	ByteRange      *ByteRange
	Key            *Key
	Map            *Map

	// Data holds the buffered bytes; Stream is set instead in raw mode.
	Data      []byte
	Stream    io.ReadCloser
	MimeType  string
	ParentURI string
}

func (s *Segment) loaded() bool {
	return s.Data != nil || s.Stream != nil
}

// Ready reports whether the segment and everything it owns has data.
func (s *Segment) Ready() bool {
	if !s.loaded() {
		return false
	}
	if s.Key != nil && !s.Key.resolved() {
		return false
	}
	if s.Map != nil && s.Map.Data == nil {
		return false
	}
	return true
}

type SessionData struct {
	DataID   string
	Value    string
	URI      string
	Format   string // JSON or RAW
	Language string
	// Data is the body fetched from URI: decoded for JSON, []byte for RAW.
	Data interface{}
	// Fetched is set once a load of URI finished, even if the body was unusable.
	Fetched bool
}

func (sd *SessionData) resolved() bool {
	return sd.Value != "" || sd.URI == "" || sd.Data != nil || sd.Fetched
}

// Ready reports whether every session data and session key entry is usable.
func (p *Master) Ready() bool {
	for _, sd := range p.SessionData {
		if !sd.resolved() {
			return false
		}
	}
	for _, k := range p.SessionKeys {
		if !k.resolved() {
			return false
		}
	}
	return true
}
