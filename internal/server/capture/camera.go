package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Camera grabs one still frame.
type Camera interface {
	Grab(ctx context.Context) (image.Image, error)
}

var ErrNoFrame = errors.New("camera returned no frame")

var gstInit sync.Once

// GstCamera reads a V4L2 device through a GStreamer pipeline ending in an
// appsink. Each Grab opens the device, discards Warmup frames, keeps the
// next one and releases the device. A pipeline that reports an error, ends
// or yields no frame within PipelineTimeout gives way to the next one.
type GstCamera struct {
	Index           int
	Width           int
	Height          int
	Warmup          int
	PipelineTimeout time.Duration
}

const busPoll = 50 * time.Millisecond

func (c *GstCamera) pipelineTimeout() time.Duration {
	if c.PipelineTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PipelineTimeout
}

// Pipelines tried in order: MJPG at the requested size first, since most
// USB cameras only offer full resolution compressed, then whatever raw
// format the device negotiates.
func (c *GstCamera) pipelines() []string {
	dev := fmt.Sprintf("/dev/video%d", c.Index)
	return []string{
		fmt.Sprintf("v4l2src device=%s ! image/jpeg,width=%d,height=%d ! jpegdec ! videoconvert ! video/x-raw,format=RGB ! appsink name=sink sync=false",
			dev, c.Width, c.Height),
		fmt.Sprintf("v4l2src device=%s ! videoconvert ! video/x-raw,format=RGB ! appsink name=sink sync=false", dev),
	}
}

func (c *GstCamera) Grab(ctx context.Context) (image.Image, error) {
	gstInit.Do(func() { gst.Init(nil) })

	var errs []error
	for _, launch := range c.pipelines() {
		img, err := c.grabFrom(ctx, launch)
		if err == nil {
			return img, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("camera %d: %w", c.Index, errors.Join(errs...))
}

func (c *GstCamera) grabFrom(ctx context.Context, launch string) (image.Image, error) {
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	defer pipeline.SetState(gst.StateNull)

	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return nil, fmt.Errorf("appsink: %w", err)
	}
	sink := app.SinkFromElement(elem)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("start pipeline: %w", err)
	}

	type grabbed struct {
		img image.Image
		err error
	}
	done := make(chan grabbed, 1)
	go func() {
		var last *gst.Sample
		for i := 0; i <= c.Warmup; i++ {
			last = sink.PullSample()
			if last == nil {
				done <- grabbed{err: ErrNoFrame}
				return
			}
		}
		img, err := sampleImage(last)
		done <- grabbed{img: img, err: err}
	}()

	// Stopping the pipeline unblocks PullSample.
	stop := func(err error) (image.Image, error) {
		pipeline.SetState(gst.StateNull)
		<-done
		return nil, err
	}

	bus := pipeline.GetPipelineBus()
	deadline := time.NewTimer(c.pipelineTimeout())
	defer deadline.Stop()
	for {
		select {
		case g := <-done:
			return g.img, g.err
		case <-ctx.Done():
			return stop(ctx.Err())
		case <-deadline.C:
			return stop(fmt.Errorf("no frame after %s", c.pipelineTimeout()))
		default:
		}

		msg := bus.TimedPop(busPoll)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			return stop(fmt.Errorf("pipeline: %s", msg.ParseError().Error()))
		case gst.MessageEOS:
			return stop(ErrNoFrame)
		}
	}
}

func sampleImage(sample *gst.Sample) (image.Image, error) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return nil, errors.New("sample without caps")
	}
	st := caps.GetStructureAt(0)
	w, err := st.GetValue("width")
	if err != nil {
		return nil, fmt.Errorf("caps width: %w", err)
	}
	h, err := st.GetValue("height")
	if err != nil {
		return nil, fmt.Errorf("caps height: %w", err)
	}
	width, _ := w.(int)
	height, _ := h.(int)

	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, ErrNoFrame
	}
	info := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	return rgbToNRGBA(info.Bytes(), width, height)
}

// rgbToNRGBA converts packed RGB rows (possibly padded) to an NRGBA image.
func rgbToNRGBA(data []byte, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || len(data) < width*height*3 {
		return nil, fmt.Errorf("frame %dx%d with %d bytes: %w", width, height, len(data), ErrNoFrame)
	}
	stride := len(data) / height
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		src := data[y*stride : y*stride+width*3]
		dst := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img, nil
}
