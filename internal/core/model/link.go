package model

import "encoding/json"

// Link is a STAC/OGC link object. Extra keeps attributes this service does not
// model so that foreign links survive a round trip unchanged.
type Link struct {
	Href   string         `json:"href"`
	Rel    string         `json:"rel"`
	Type   string         `json:"type,omitempty"`
	Title  string         `json:"title,omitempty"`
	Method string         `json:"method,omitempty"`
	Body   any            `json:"body,omitempty"`
	Extra  map[string]any `json:"-"`
}

var linkKnown = map[string]struct{}{
	"href": {}, "rel": {}, "type": {}, "title": {}, "method": {}, "body": {},
}

func (l Link) MarshalJSON() ([]byte, error) {
	type plain Link
	base, err := json.Marshal(plain(l))
	if err != nil {
		return nil, err
	}
	if len(l.Extra) == 0 {
		return base, nil
	}
	var m map[string]any
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range l.Extra {
		if _, ok := linkKnown[k]; !ok {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

func (l *Link) UnmarshalJSON(b []byte) error {
	type plain Link
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for k := range linkKnown {
		delete(m, k)
	}
	*l = Link(p)
	if len(m) > 0 {
		l.Extra = m
	} else {
		l.Extra = nil
	}
	return nil
}
