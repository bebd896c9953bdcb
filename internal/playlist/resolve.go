package playlist

// ResolveFunc maps a reference found in a playlist to an absolute location.
type ResolveFunc func(ref string) (string, error)

func resolveField(fn ResolveFunc, s *string) error {
	if *s == "" {
		return nil
	}
	loc, err := fn(*s)
	if err != nil {
		return err
	}
	*s = loc
	return nil
}

// ResolveReferences rewrites every URI the playlist refers to.
func (p *Master) ResolveReferences(fn ResolveFunc) error {
	for _, v := range p.Variants {
		if err := resolveField(fn, &v.URI); err != nil {
			return err
		}
		for _, t := range RenditionTypes {
			for _, r := range v.Renditions(t) {
				if err := resolveField(fn, &r.URI); err != nil {
					return err
				}
			}
		}
	}
	for _, sd := range p.SessionData {
		if err := resolveField(fn, &sd.URI); err != nil {
			return err
		}
	}
	for _, k := range p.SessionKeys {
		if err := resolveField(fn, &k.URI); err != nil {
			return err
		}
	}
	return nil
}

// ResolveReferences rewrites every URI the playlist refers to and records
// the playlist as each segment's parent.
func (p *Media) ResolveReferences(fn ResolveFunc) error {
	for _, s := range p.Segments {
		if err := resolveField(fn, &s.URI); err != nil {
			return err
		}
		if s.Key != nil {
			if err := resolveField(fn, &s.Key.URI); err != nil {
				return err
			}
		}
		if s.Map != nil {
			if err := resolveField(fn, &s.Map.URI); err != nil {
				return err
			}
		}
		s.ParentURI = p.URI
	}
	return nil
}
