package bam

import "encoding/json"

// Entity is a remote resource record. IDs are opaque positive integers,
// never reused within a session. The identity field depends on the kind:
// name, range, address, or absoluteName.
type Entity struct {
	ID           int64          `json:"id"`
	Type         string         `json:"type"`
	Name         string         `json:"name,omitempty"`
	Range        string         `json:"range,omitempty"`
	Address      string         `json:"address,omitempty"`
	AbsoluteName string         `json:"absoluteName,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`

	UserDefinedFields map[string]string `json:"userDefinedFields,omitempty"`

	Links    map[string]halLink         `json:"_links,omitempty"`
	Embedded map[string]json.RawMessage `json:"_embedded,omitempty"`
}

// Identity returns the kind-specific identity value of the entity.
func (e *Entity) Identity() string {
	switch {
	case e.AbsoluteName != "":
		return e.AbsoluteName
	case e.Range != "":
		return e.Range
	case e.Address != "":
		return e.Address
	default:
		return e.Name
	}
}

// Property returns a string property by key, or "".
func (e *Entity) Property(key string) string {
	if e.Properties == nil {
		return ""
	}
	if v, ok := e.Properties[key].(string); ok {
		return v
	}
	return ""
}

// halLink is a single _links entry.
type halLink struct {
	Href string `json:"href"`
}

// halEnvelope is the collection response shape. Servers return items
// either in a flat data array or under _embedded, keyed by the collection
// name; both carry _links.next while more pages exist.
type halEnvelope struct {
	Data     []Entity                   `json:"data"`
	Count    int                        `json:"count"`
	Embedded map[string]json.RawMessage `json:"_embedded"`
	Links    map[string]halLink         `json:"_links"`
}

// items extracts the page's entities from whichever shape is present.
func (h *halEnvelope) items() ([]Entity, error) {
	if h.Data != nil {
		return h.Data, nil
	}
	for _, raw := range h.Embedded {
		var entities []Entity
		if err := json.Unmarshal(raw, &entities); err != nil {
			return nil, err
		}
		return entities, nil
	}
	return nil, nil
}

// next returns the next-page URL, or "".
func (h *halEnvelope) next() string {
	if link, ok := h.Links["next"]; ok {
		return link.Href
	}
	return ""
}
