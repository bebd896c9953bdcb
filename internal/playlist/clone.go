package playlist

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func (br *ByteRange) clone() *ByteRange {
	if br == nil {
		return nil
	}
	c := *br
	return &c
}

func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	c := *k
	c.Data = cloneBytes(k.Data)
	return &c
}

func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	c := *m
	c.ByteRange = m.ByteRange.clone()
	c.Data = cloneBytes(m.Data)
	return &c
}

// Clone copies the segment. A raw Stream is handed over, not duplicated.
func (s *Segment) Clone() *Segment {
	if s == nil {
		return nil
	}
	c := *s
	c.ByteRange = s.ByteRange.clone()
	c.Key = s.Key.Clone()
	c.Map = s.Map.Clone()
	c.Data = cloneBytes(s.Data)
	return &c
}

func cloneRenditions(list []*Rendition) []*Rendition {
	if list == nil {
		return nil
	}
	out := make([]*Rendition, len(list))
	for i, r := range list {
		c := *r
		out[i] = &c
	}
	return out
}

func (v *Variant) Clone() *Variant {
	c := *v
	c.Audio = cloneRenditions(v.Audio)
	c.Video = cloneRenditions(v.Video)
	c.Subtitles = cloneRenditions(v.Subtitles)
	c.ClosedCaptions = cloneRenditions(v.ClosedCaptions)
	return &c
}

// Clone returns a deep copy. SessionData.Data is shared because decoded JSON
// is never mutated after loading.
func (p *Master) Clone() *Master {
	c := *p
	c.Variants = make([]*Variant, len(p.Variants))
	for i, v := range p.Variants {
		c.Variants[i] = v.Clone()
	}
	c.SessionData = make([]*SessionData, len(p.SessionData))
	for i, sd := range p.SessionData {
		d := *sd
		c.SessionData[i] = &d
	}
	c.SessionKeys = make([]*Key, len(p.SessionKeys))
	for i, k := range p.SessionKeys {
		c.SessionKeys[i] = k.Clone()
	}
	return &c
}

// Clone returns a copy whose segment list and segments are independent of p.
// Segment payloads are left out; they are delivered with each segment.
func (p *Media) Clone() *Media {
	c := *p
	c.Segments = make([]*Segment, len(p.Segments))
	for i, s := range p.Segments {
		seg := *s
		seg.ByteRange = s.ByteRange.clone()
		seg.Key = s.Key.Clone()
		seg.Map = s.Map.Clone()
		seg.Data = nil
		seg.Stream = nil
		c.Segments[i] = &seg
	}
	return &c
}
