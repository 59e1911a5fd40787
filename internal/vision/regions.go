package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
)

// Rect is a region rectangle in pixels. It encodes as [x, y, w, h].
type Rect struct {
	X, Y, W, H int
}

// Clamp fits r inside a width x height image, keeping at least one pixel.
func (r Rect) Clamp(width, height int) Rect {
	x := max(0, min(r.X, width-1))
	y := max(0, min(r.Y, height-1))
	w := max(1, min(r.W, width-x))
	h := max(1, min(r.H, height-y))
	return Rect{X: x, Y: y, W: w, H: h}
}

func (r Rect) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X, r.Y, r.W, r.H})
}

func (r *Rect) UnmarshalJSON(b []byte) error {
	var v []float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("region needs 4 values, got %d", len(v))
	}
	*r = Rect{X: int(v[0]), Y: int(v[1]), W: int(v[2]), H: int(v[3])}
	return nil
}

// Region is one named slot of a drawer.
type Region struct {
	Name string
	Rect Rect
}

// LoadRegions reads a region file. See ParseRegions for the formats.
func LoadRegions(path string) ([]Region, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegions(b)
}

// ParseRegions accepts either an object {"name": [x, y, w, h], ...} or a
// list [{"nome": "name", "coords": [x, y, w, h]}, ...]. File order is kept
// and a repeated name replaces the earlier rectangle in place.
func ParseRegions(data []byte) ([]Region, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid region file: %w", err)
	}

	var set regionSet
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("invalid region file: %w", err)
			}
			var r Rect
			if err := dec.Decode(&r); err != nil {
				return nil, fmt.Errorf("region %v: %w", keyTok, err)
			}
			set.put(fmt.Sprint(keyTok), r)
		}
	case json.Delim('['):
		for dec.More() {
			var item struct {
				Name   *string `json:"nome"`
				Coords *Rect   `json:"coords"`
			}
			if err := dec.Decode(&item); err != nil {
				return nil, fmt.Errorf("invalid region item: %w", err)
			}
			if item.Coords == nil {
				return nil, fmt.Errorf("region item %d has no coords", len(set.list)+1)
			}
			name := fmt.Sprintf("roi_%d", len(set.list)+1)
			if item.Name != nil {
				name = *item.Name
			}
			set.put(name, *item.Coords)
		}
	default:
		return nil, fmt.Errorf("invalid region file: unexpected %v", tok)
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("invalid region file: %w", err)
	}
	return set.list, nil
}

type regionSet struct {
	list  []Region
	index map[string]int
}

func (s *regionSet) put(name string, r Rect) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[name]; ok {
		s.list[i].Rect = r
		return
	}
	s.index[name] = len(s.list)
	s.list = append(s.list, Region{Name: name, Rect: r})
}
