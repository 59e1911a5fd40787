// Package capture photographs a drawer, stores the frame as evidence and
// runs the presence analysis on it.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/logging"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/evidence"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/metrics"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/vision"
)

const tailLimit = 1000

// Size is a width/height pair; unknown dimensions encode as null.
type Size struct {
	Width  *int `json:"width"`
	Height *int `json:"height"`
}

func sizeOf(w, h int) Size { return Size{Width: &w, Height: &h} }

// Meta records the frame sizes seen along the way, from the camera to the
// stored evidence.
type Meta struct {
	CameraOriginal Size `json:"camera_original"`
	SessionSaved   Size `json:"sessao_salva"`
	OutputBefore   Size `json:"saida_before"`
	OutputAfter    Size `json:"saida_after"`
	Target         Size `json:"target"`
}

// Raw is the analyzer output as it was produced: the stream tails, the
// report line when it parses as JSON, and the sizes.
type Raw struct {
	Stdout string          `json:"stdout"`
	Stderr string          `json:"stderr"`
	JSON   json.RawMessage `json:"json"`
	Meta   Meta            `json:"meta"`
}

// Evidence is the diagnostic document returned with a confirmation.
type Evidence struct {
	OK  bool `json:"ok"`
	Raw Raw  `json:"raw"`

	Report *vision.Report `json:"-"`
}

// Result of a capture. ImageRef is the evidence key of the stored frame.
type Result struct {
	ImageRef string
	OK       bool
	Evidence Evidence
}

// Config of an Adapter.
type Config struct {
	// VisionDir holds the per-drawer references and region files.
	VisionDir string
	// Width and Height are the size frames are stored and analyzed at.
	Width  int
	Height int
	// Timeout bounds the analysis.
	Timeout time.Duration
	// GrabTimeout bounds taking the photo.
	GrabTimeout time.Duration
}

// Adapter owns the camera; captures are serialized.
type Adapter struct {
	mu       sync.Mutex
	camera   Camera
	analyzer Analyzer
	store    evidence.Store
	cfg      Config
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewAdapter(cfg Config, camera Camera, analyzer Analyzer, store evidence.Store, logger logging.Logger, m *metrics.Metrics) *Adapter {
	if cfg.Width <= 0 {
		cfg.Width = 1920
	}
	if cfg.Height <= 0 {
		cfg.Height = 1080
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.GrabTimeout <= 0 {
		cfg.GrabTimeout = 15 * time.Second
	}
	return &Adapter{
		camera:   camera,
		analyzer: analyzer,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("module", "capture"),
		metrics:  m,
		now:      time.Now,
	}
}

// ReferencePath is the empty-drawer reference image for a drawer.
func (a *Adapter) ReferencePath(drawer int) string {
	return filepath.Join(a.cfg.VisionDir, fmt.Sprintf("ref_vazia_gaveta%d.jpg", drawer))
}

// RegionsPath is the region file for a drawer.
func (a *Adapter) RegionsPath(drawer int) string {
	return filepath.Join(a.cfg.VisionDir, fmt.Sprintf("rois_gaveta%d.json", drawer))
}

// Capture grabs, stores and analyzes one frame of drawer. Errors wrap
// common.ErrorCaptureFailed; an analysis that ran but failed is a Result
// with OK false.
func (a *Adapter) Capture(ctx context.Context, sessionID int64, drawer int) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.now()
	res, err := a.capture(ctx, sessionID, drawer)

	outcome := metrics.CaptureOK
	switch {
	case err != nil:
		outcome = metrics.CaptureFailed
		a.logger.Error(ctx, "capture failed", "session_id", sessionID, "drawer", drawer, "error", err)
	case !res.OK:
		outcome = metrics.CaptureNotOK
		a.logger.Warn(ctx, "analysis not ok", "session_id", sessionID, "drawer", drawer)
	default:
		a.logger.Info(ctx, "capture done", "session_id", sessionID, "drawer", drawer, "image", res.ImageRef)
	}
	a.metrics.Capture(outcome, a.now().Sub(start))

	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorCaptureFailed, err)
	}
	return res, nil
}

func (a *Adapter) capture(ctx context.Context, sessionID int64, drawer int) (*Result, error) {
	frame, err := a.grab(ctx)
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, ErrNoFrame
	}
	b := frame.Bounds()
	meta := Meta{
		CameraOriginal: sizeOf(b.Dx(), b.Dy()),
		Target:         sizeOf(a.cfg.Width, a.cfg.Height),
	}

	jpeg, err := encodeJPEG(imaging.Resize(frame, a.cfg.Width, a.cfg.Height, imaging.CatmullRom))
	if err != nil {
		return nil, err
	}
	imageKey := evidence.SessionKey(sessionID, drawer, ".jpg")
	if err := a.store.Put(ctx, imageKey, jpeg, "image/jpeg"); err != nil {
		return nil, fmt.Errorf("store frame: %w", err)
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(jpeg)); err == nil {
		meta.SessionSaved = sizeOf(cfg.Width, cfg.Height)
	}

	outputKey := evidence.SessionKey(sessionID, drawer, "_saida.jpg")
	actx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	an, err := a.analyzer.Analyze(actx, Request{
		Image:      jpeg,
		ImageName:  filepath.Base(imageKey),
		OutputName: filepath.Base(outputKey),
		Reference:  a.ReferencePath(drawer),
		Regions:    a.RegionsPath(drawer),
		DrawerID:   strconv.Itoa(drawer),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("analysis timed out after %s", a.cfg.Timeout)
		}
		return nil, err
	}

	if len(an.Output) > 0 {
		if err := a.storeOutput(ctx, outputKey, an.Output, &meta); err != nil {
			a.logger.Warn(ctx, "store analysis output", "key", outputKey, "error", err)
		}
	}

	raw := Raw{
		Stdout: tail(an.Stdout, tailLimit),
		Stderr: tail(an.Stderr, tailLimit),
		JSON:   json.RawMessage("null"),
		Meta:   meta,
	}
	ev := Evidence{OK: an.OK, Raw: raw}
	if line := lastLine(an.Stdout); json.Valid([]byte(line)) {
		ev.Raw.JSON = json.RawMessage(line)
		var rep vision.Report
		if err := json.Unmarshal([]byte(line), &rep); err == nil {
			ev.Report = &rep
			if err := a.store.Put(ctx, evidence.SessionKey(sessionID, drawer, "_saida.json"), []byte(line), "application/json"); err != nil {
				a.logger.Warn(ctx, "store analysis report", "error", err)
			}
		}
	}

	return &Result{ImageRef: imageKey, OK: an.OK, Evidence: ev}, nil
}

// grab returns once the camera answers or GrabTimeout elapses, whichever
// comes first, even if the camera ignores its context.
func (a *Adapter) grab(ctx context.Context) (image.Image, error) {
	gctx, cancel := context.WithTimeout(ctx, a.cfg.GrabTimeout)
	defer cancel()

	type grabbed struct {
		img image.Image
		err error
	}
	done := make(chan grabbed, 1)
	go func() {
		img, err := a.camera.Grab(gctx)
		done <- grabbed{img: img, err: err}
	}()

	var g grabbed
	select {
	case g = <-done:
	case <-gctx.Done():
		g.err = gctx.Err()
	}
	if g.err != nil && ctx.Err() == nil && errors.Is(gctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("camera grab timed out after %s", a.cfg.GrabTimeout)
	}
	return g.img, g.err
}

// storeOutput forces the annotated image to the target size before
// storing it, recording both sizes.
func (a *Adapter) storeOutput(ctx context.Context, key string, data []byte, meta *Meta) error {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	b := img.Bounds()
	meta.OutputBefore = sizeOf(b.Dx(), b.Dy())
	if b.Dx() != a.cfg.Width || b.Dy() != a.cfg.Height {
		if data, err = encodeJPEG(imaging.Resize(img, a.cfg.Width, a.cfg.Height, imaging.CatmullRom)); err != nil {
			return err
		}
	}
	meta.OutputAfter = sizeOf(a.cfg.Width, a.cfg.Height)
	return a.store.Put(ctx, key, data, "image/jpeg")
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
