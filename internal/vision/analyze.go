package vision

import (
	"encoding/json"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/filex"
)

// Input describes one drawer analysis.
type Input struct {
	Reference     image.Image
	ReferenceName string
	Current       image.Image
	Regions       []Region
	RegionsName   string
	OutputName    string
	User          string
	DrawerID      string
	Expected      string
	Now           func() time.Time
}

// Analyze runs the detector and builds the report together with the
// annotated current image.
func (d *Detector) Analyze(in Input) (*Report, *image.NRGBA, error) {
	dets, resized, err := d.Detect(in.Reference, in.Current, in.Regions)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now
	if in.Now != nil {
		now = in.Now
	}

	rep := &Report{
		Timestamp:   now().Unix(),
		User:        optional(in.User),
		DrawerID:    optional(in.DrawerID),
		OutputImage: in.OutputName,
		Reference:   filepath.Base(in.ReferenceName),
		Regions:     filepath.Base(in.RegionsName),
		Details:     dets,
		Occupied:    Occupied(dets),
		Expected:    in.Expected,
	}
	if in.Expected != "" {
		ok := rep.Matches([]string{in.Expected})[0]
		rep.OK = &ok
	}

	return rep, Annotate(resized, dets), nil
}

// FileOptions are the paths used by RunFiles.
type FileOptions struct {
	Reference string
	Regions   string
	Image     string
	Save      string
	User      string
	DrawerID  string
	Expected  string
}

// RunFiles loads the inputs from disk, writes the annotated image to Save
// and the report next to it (same name, .json), and returns the report.
func (d *Detector) RunFiles(opts FileOptions, logf func(format string, args ...any)) (*Report, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	for _, p := range []string{opts.Reference, opts.Regions, opts.Image} {
		state := "OK"
		if !filex.Exists(p) {
			state = "NÃO ENCONTRADO"
		}
		logf("Checando: %s -> %s", p, state)
	}

	ref, err := imaging.Open(opts.Reference)
	if err != nil {
		return nil, fmt.Errorf("load reference: %w", err)
	}
	cur, err := imaging.Open(opts.Image)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	regions, err := LoadRegions(opts.Regions)
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}

	rep, annotated, err := d.Analyze(Input{
		Reference:     ref,
		ReferenceName: opts.Reference,
		Current:       cur,
		Regions:       regions,
		RegionsName:   opts.Regions,
		OutputName:    opts.Save,
		User:          opts.User,
		DrawerID:      opts.DrawerID,
		Expected:      opts.Expected,
	})
	if err != nil {
		return nil, err
	}

	if _, err := filex.EnsureDir(filepath.Dir(opts.Save)); err != nil {
		return nil, err
	}
	if err := imaging.Save(annotated, opts.Save); err != nil {
		return nil, fmt.Errorf("save annotated image: %w", err)
	}
	logf("Imagem salva em '%s'", opts.Save)

	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, err
	}
	jsonPath := SidecarPath(opts.Save)
	if err := filex.WriteFileAtomic(jsonPath, body); err != nil {
		return nil, err
	}
	logf("STATUS FINAL JSON: %s", jsonPath)

	return rep, nil
}

// SidecarPath swaps the extension of an image path for ".json".
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".json"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
