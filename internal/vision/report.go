package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Report is the document written next to the annotated image and printed
// as the last line of the drawerdetect output.
type Report struct {
	Timestamp   int64    `json:"timestamp"`
	User        *string  `json:"usuario"`
	DrawerID    *string  `json:"gaveta_id"`
	OutputImage string   `json:"imagem_saida"`
	Reference   string   `json:"ref"`
	Regions     string   `json:"rois"`
	Details     Details  `json:"detalhes"`
	Occupied    []string `json:"retiradas"`
	Expected    string   `json:"esperada"`
	OK          *bool    `json:"ok"`
}

// Details keeps region order when encoded as a JSON object.
type Details []Detection

func (d Details) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, det := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(det.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(det.Result)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Details) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("detalhes: expected object, got %v", tok)
	}
	var out Details
	for dec.More() {
		k, err := dec.Token()
		if err != nil {
			return err
		}
		var r RegionResult
		if err := dec.Decode(&r); err != nil {
			return err
		}
		out = append(out, Detection{Name: fmt.Sprint(k), Result: r})
	}
	*d = out
	return nil
}

// Matches reports, per expected name, whether it is among the occupied
// regions.
func (r *Report) Matches(expected []string) []bool {
	occupied := make(map[string]struct{}, len(r.Occupied))
	for _, n := range r.Occupied {
		occupied[n] = struct{}{}
	}
	out := make([]bool, len(expected))
	for i, n := range expected {
		_, out[i] = occupied[n]
	}
	return out
}
