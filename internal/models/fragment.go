package models

import "strings"

// Fragment is one positioned text run reported by a fragment source.
// Coordinates are PDF user-space units with a bottom-left origin.
type Fragment struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Page int     `json:"page"`
}

// Page holds every fragment of one page. Width and Height are zero when the
// source could not determine the page box.
type Page struct {
	Number    int        `json:"number"`
	Width     float64    `json:"width,omitempty"`
	Height    float64    `json:"height,omitempty"`
	Fragments []Fragment `json:"fragments"`
}

// Line is a group of fragments sharing a printed baseline, ordered by x.
type Line struct {
	Page      int
	Y         float64
	Fragments []Fragment
}

// Text joins the line's fragments with a single space.
func (l Line) Text() string {
	parts := make([]string, 0, len(l.Fragments))
	for _, f := range l.Fragments {
		if s := strings.TrimSpace(f.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
