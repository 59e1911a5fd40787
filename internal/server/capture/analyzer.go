package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/filex"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/vision"
)

// Request is one drawer analysis. Image is the JPEG already stored as
// evidence; Reference and Regions are files in the vision directory.
type Request struct {
	Image      []byte
	ImageName  string
	OutputName string
	Reference  string
	Regions    string
	DrawerID   string
}

// Analysis is what an analyzer produced. OK is false when the analyzer
// ran but failed; Stdout and Stderr then carry the diagnostics.
type Analysis struct {
	OK     bool
	Stdout string
	Stderr string
	Output []byte
}

// Analyzer inspects a captured frame. The only error it returns is the
// context error when the deadline passes; every other problem is an
// Analysis with OK false.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Analysis, error)
}

// InProcessAnalyzer runs the vision detector inside the server and
// renders the same output the drawerdetect tool would print.
type InProcessAnalyzer struct {
	Detector *vision.Detector
	Now      func() time.Time
}

func NewInProcessAnalyzer() *InProcessAnalyzer {
	return &InProcessAnalyzer{Detector: vision.NewDetector()}
}

func (a *InProcessAnalyzer) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	done := make(chan *Analysis, 1)
	go func() { done <- a.run(req) }()

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *InProcessAnalyzer) run(req Request) *Analysis {
	var stdout, stderr strings.Builder
	logf := func(format string, args ...any) {
		fmt.Fprintf(&stdout, "[LOG] "+format+"\n", args...)
	}
	fail := func(err error) *Analysis {
		fmt.Fprintf(&stderr, "[ERRO] %v\n", err)
		return &Analysis{Stdout: stdout.String(), Stderr: stderr.String()}
	}

	for _, p := range []string{req.Reference, req.Regions} {
		state := "OK"
		if !filex.Exists(p) {
			state = "NÃO ENCONTRADO"
		}
		logf("Checando: %s -> %s", p, state)
	}

	ref, err := imaging.Open(req.Reference)
	if err != nil {
		return fail(fmt.Errorf("load reference: %w", err))
	}
	regions, err := vision.LoadRegions(req.Regions)
	if err != nil {
		return fail(fmt.Errorf("load regions: %w", err))
	}
	cur, err := imaging.Decode(bytes.NewReader(req.Image))
	if err != nil {
		return fail(fmt.Errorf("decode image: %w", err))
	}

	detector := a.Detector
	if detector == nil {
		detector = vision.NewDetector()
	}
	rep, annotated, err := detector.Analyze(vision.Input{
		Reference:     ref,
		ReferenceName: req.Reference,
		Current:       cur,
		Regions:       regions,
		RegionsName:   req.Regions,
		OutputName:    req.OutputName,
		DrawerID:      req.DrawerID,
		Now:           a.Now,
	})
	if err != nil {
		return fail(err)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, annotated, imaging.JPEG); err != nil {
		return fail(fmt.Errorf("encode output: %w", err))
	}
	logf("Imagem salva em '%s'", req.OutputName)

	line, err := json.Marshal(rep)
	if err != nil {
		return fail(err)
	}
	stdout.Write(line)
	stdout.WriteByte('\n')

	return &Analysis{OK: true, Stdout: stdout.String(), Stderr: stderr.String(), Output: out.Bytes()}
}

// ExecAnalyzer runs the drawerdetect binary on a scratch copy of the
// frame, the way the detector was deployed as a standalone tool.
type ExecAnalyzer struct {
	Binary  string
	TempDir string
}

var execCommand = exec.CommandContext

func (a *ExecAnalyzer) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	dir, err := os.MkdirTemp(a.TempDir, "drawerdetect-"+uuid.NewString()+"-")
	if err != nil {
		return &Analysis{Stderr: err.Error()}, nil
	}
	defer os.RemoveAll(dir)

	image := filepath.Join(dir, filepath.Base(req.ImageName))
	save := filepath.Join(dir, filepath.Base(req.OutputName))
	if err := os.WriteFile(image, req.Image, 0o600); err != nil {
		return &Analysis{Stderr: err.Error()}, nil
	}

	args := []string{"--image", image, "--ref", req.Reference, "--rois", req.Regions, "--save", save}
	if req.DrawerID != "" {
		args = append(args, "--gaveta-id", req.DrawerID)
	}

	var stdout, stderr bytes.Buffer
	cmd := execCommand(ctx, a.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res := &Analysis{OK: runErr == nil, Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		res.Stderr += runErr.Error()
	}
	if b, err := os.ReadFile(save); err == nil {
		res.Output = b
	}
	return res, nil
}
