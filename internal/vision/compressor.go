package vision

import (
	"bytes"
	"image/jpeg"
	"time"

	"go.uber.org/zap"

	"github.com/retroview/retroview/internal/logging"
	"github.com/retroview/retroview/internal/runloop"
)

// Quality bounds. MaxQuality selects lossless PNG when the client is
// known to support it; everything below is a JPEG quality level.
const (
	MinQuality  = 1
	MaxQuality  = 101
	JPEGQuality = 100
)

// SendFunc delivers one compressed frame to a waiting HTTP request.
type SendFunc func(contentType string, data []byte)

type compressed struct {
	contentType string
	data        []byte
}

type waiter struct {
	send  SendFunc
	timer *runloop.Timer
}

// Compressor owns the most recent compressed frame of a session's
// viewport. It serves polls either immediately or after the next
// change, and keeps at most one compression running in the background.
//
// All exported methods must be called from the control loop.
type Compressor struct {
	loop *runloop.Loop
	log  *logging.Logger

	sendTimeout time.Duration
	allowPNG    bool
	quality     int

	latest       ImageSlice
	hasLatest    bool
	imageUpdated bool

	frame        compressed
	frameUpdated bool
	inProgress   bool

	pending *waiter

	jobs chan func()
}

// NewCompressor creates a compressor serving a 1x1 white placeholder
// until the first viewport update has been compressed.
func NewCompressor(loop *runloop.Loop, log *logging.Logger, sendTimeout time.Duration, allowPNG bool, quality int) *Compressor {
	c := &Compressor{
		loop:        loop,
		log:         log,
		sendTimeout: sendTimeout,
		allowPNG:    allowPNG,
		quality:     clampQuality(quality, allowPNG),
		frame:       compressed{contentType: "image/jpeg", data: whitePixelJPEG},
		jobs:        make(chan func(), 1),
	}
	go func() {
		for job := range c.jobs {
			job()
		}
	}()
	return c
}

// Close stops the background compression worker.
func (c *Compressor) Close() {
	close(c.jobs)
}

// Update records a new viewport to compress and serve. The slice is
// copied before compression, so the caller may keep mutating it.
func (c *Compressor) Update(img ImageSlice) {
	c.latest = img
	c.hasLatest = true
	c.imageUpdated = true
	c.pump()
}

// SetQuality changes the compression quality and recompresses the
// current viewport so the next poll observes the change.
func (c *Compressor) SetQuality(quality int) {
	quality = clampQuality(quality, c.allowPNG)
	if quality == c.quality {
		return
	}
	c.quality = quality
	c.imageUpdated = true
	c.pump()
}

// ServeNow answers with the most recent compressed frame, unblocking
// any outstanding long poll first.
func (c *Compressor) ServeNow(send SendFunc) {
	c.Flush()
	c.serve(send)
}

// ServeOnChange answers as soon as a frame newer than the last served
// one is available, or after the send timeout elapses, whichever comes
// first. An outstanding long poll is unblocked first; only one request
// waits at a time.
func (c *Compressor) ServeOnChange(send SendFunc) {
	c.Flush()
	if c.frameUpdated {
		c.serve(send)
		return
	}
	w := &waiter{send: send, timer: runloop.NewTimer(c.loop, c.sendTimeout)}
	w.timer.Arm(func() {
		if c.pending == w {
			c.pending = nil
			c.serve(w.send)
		}
	})
	c.pending = w
}

// Flush immediately completes an outstanding long poll with whatever
// frame is current. Called when the session is closing or a newer poll
// supersedes the waiting one.
func (c *Compressor) Flush() {
	if c.pending == nil {
		return
	}
	w := c.pending
	c.pending = nil
	w.timer.Stop()
	c.serve(w.send)
}

func (c *Compressor) serve(send SendFunc) {
	send(c.frame.contentType, c.frame.data)
	c.frameUpdated = false
	c.pump()
}

// pump starts a background compression if there is fresh input, nothing
// is already running, and the previous result has been consumed.
func (c *Compressor) pump() {
	if c.inProgress || !c.imageUpdated || c.frameUpdated || !c.hasLatest {
		return
	}
	c.inProgress = true
	c.imageUpdated = false

	img := c.latest.Clone()
	quality := c.quality

	c.jobs <- func() {
		frame, err := encodeFrame(img, quality)
		c.loop.Post(func() {
			c.inProgress = false
			if err != nil {
				c.log.Error("viewport compression failed", zap.Error(err))
				c.pump()
				return
			}
			c.frame = frame
			c.frameUpdated = true
			c.Flush()
			c.pump()
		})
	}
}

func encodeFrame(img ImageSlice, quality int) (compressed, error) {
	if quality == MaxQuality {
		data, err := encodePNG(img)
		if err != nil {
			return compressed{}, err
		}
		return compressed{contentType: "image/png", data: data}, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.RGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return compressed{}, err
	}
	return compressed{contentType: "image/jpeg", data: buf.Bytes()}, nil
}

func clampQuality(quality int, allowPNG bool) int {
	upper := JPEGQuality
	if allowPNG {
		upper = MaxQuality
	}
	if quality > upper {
		return upper
	}
	if quality < MinQuality {
		return MinQuality
	}
	return quality
}

// whitePixelJPEG is a pre-encoded 1x1 white JPEG served before the
// first real frame exists.
var whitePixelJPEG = []byte{
	255, 216, 255, 224, 0, 16, 74, 70, 73, 70, 0, 1, 1, 1, 0, 72, 0, 72,
	0, 0, 255, 219, 0, 67, 0, 3, 2, 2, 3, 2, 2, 3, 3, 3, 3, 4, 3, 3, 4,
	5, 8, 5, 5, 4, 4, 5, 10, 7, 7, 6, 8, 12, 10, 12, 12, 11, 10, 11, 11,
	13, 14, 18, 16, 13, 14, 17, 14, 11, 11, 16, 22, 16, 17, 19, 20, 21,
	21, 21, 12, 15, 23, 24, 22, 20, 24, 18, 20, 21, 20, 255, 219, 0, 67,
	1, 3, 4, 4, 5, 4, 5, 9, 5, 5, 9, 20, 13, 11, 13, 20, 20, 20, 20, 20,
	20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20,
	20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20,
	20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 255, 192, 0, 17, 8, 0,
	1, 0, 1, 3, 1, 17, 0, 2, 17, 1, 3, 17, 1, 255, 196, 0, 20, 0, 1, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 9, 255, 196, 0, 20, 16, 1,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 255, 196, 0, 20, 1,
	1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 255, 196, 0, 20,
	17, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 255, 218, 0,
	12, 3, 1, 0, 2, 17, 3, 17, 0, 63, 0, 84, 193, 255, 217,
}
