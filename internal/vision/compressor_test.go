package vision

import (
	"bytes"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroview/retroview/internal/logging"
	"github.com/retroview/retroview/internal/runloop"
)

type frameCapture struct {
	contentType string
	data        []byte
}

func onLoop(t *testing.T, loop *runloop.Loop, task func()) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, loop.Post(func() {
		task()
		close(done)
	}))
	<-done
}

func waitFrame(t *testing.T, ch chan frameCapture) frameCapture {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame served")
		return frameCapture{}
	}
}

func TestCompressorServesPlaceholderBeforeFirstFrame(t *testing.T) {
	loop := runloop.New()
	loop.Start()
	defer loop.Stop()

	c := NewCompressor(loop, logging.NewNop(), time.Second, false, 80)
	defer c.Close()

	frames := make(chan frameCapture, 1)
	onLoop(t, loop, func() {
		c.ServeNow(func(contentType string, data []byte) {
			frames <- frameCapture{contentType, data}
		})
	})

	frame := waitFrame(t, frames)
	assert.Equal(t, "image/jpeg", frame.contentType)

	img, err := jpeg.Decode(bytes.NewReader(frame.data))
	require.NoError(t, err)
	assert.Equal(t, 1, img.Bounds().Dx())
	assert.Equal(t, 1, img.Bounds().Dy())
}

func TestCompressorServesUpdatedFrameOnChange(t *testing.T) {
	loop := runloop.New()
	loop.Start()
	defer loop.Stop()

	c := NewCompressor(loop, logging.NewNop(), 5*time.Second, false, 80)
	defer c.Close()

	frames := make(chan frameCapture, 1)
	onLoop(t, loop, func() {
		c.ServeOnChange(func(contentType string, data []byte) {
			frames <- frameCapture{contentType, data}
		})
		c.Update(NewImage(16, 9))
	})

	frame := waitFrame(t, frames)
	assert.Equal(t, "image/jpeg", frame.contentType)

	img, err := jpeg.Decode(bytes.NewReader(frame.data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 9, img.Bounds().Dy())
}

func TestCompressorTimesOutLongPoll(t *testing.T) {
	loop := runloop.New()
	loop.Start()
	defer loop.Stop()

	c := NewCompressor(loop, logging.NewNop(), 30*time.Millisecond, false, 80)
	defer c.Close()

	frames := make(chan frameCapture, 1)
	start := time.Now()
	onLoop(t, loop, func() {
		c.ServeOnChange(func(contentType string, data []byte) {
			frames <- frameCapture{contentType, data}
		})
	})

	waitFrame(t, frames)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestCompressorFlushCompletesOutstandingPoll(t *testing.T) {
	loop := runloop.New()
	loop.Start()
	defer loop.Stop()

	c := NewCompressor(loop, logging.NewNop(), time.Hour, false, 80)
	defer c.Close()

	frames := make(chan frameCapture, 1)
	onLoop(t, loop, func() {
		c.ServeOnChange(func(contentType string, data []byte) {
			frames <- frameCapture{contentType, data}
		})
	})

	select {
	case <-frames:
		t.Fatal("poll completed before flush")
	case <-time.After(20 * time.Millisecond):
	}

	onLoop(t, loop, func() { c.Flush() })
	waitFrame(t, frames)
}

func TestCompressorNewPollSupersedesWaitingOne(t *testing.T) {
	loop := runloop.New()
	loop.Start()
	defer loop.Stop()

	c := NewCompressor(loop, logging.NewNop(), time.Hour, false, 80)
	defer c.Close()

	first := make(chan frameCapture, 1)
	second := make(chan frameCapture, 1)
	onLoop(t, loop, func() {
		c.ServeOnChange(func(contentType string, data []byte) {
			first <- frameCapture{contentType, data}
		})
		c.ServeOnChange(func(contentType string, data []byte) {
			second <- frameCapture{contentType, data}
		})
	})

	waitFrame(t, first)
	select {
	case <-second:
		t.Fatal("second poll must keep waiting")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCompressorMaxQualitySelectsPNG(t *testing.T) {
	loop := runloop.New()
	loop.Start()
	defer loop.Stop()

	c := NewCompressor(loop, logging.NewNop(), 5*time.Second, true, MaxQuality)
	defer c.Close()

	frames := make(chan frameCapture, 1)
	onLoop(t, loop, func() {
		c.ServeOnChange(func(contentType string, data []byte) {
			frames <- frameCapture{contentType, data}
		})
		c.Update(NewImage(7, 5))
	})

	frame := waitFrame(t, frames)
	assert.Equal(t, "image/png", frame.contentType)

	img, err := png.Decode(bytes.NewReader(frame.data))
	require.NoError(t, err)
	assert.Equal(t, 7, img.Bounds().Dx())
	assert.Equal(t, 5, img.Bounds().Dy())
}

func TestClampQuality(t *testing.T) {
	assert.Equal(t, MinQuality, clampQuality(-10, true))
	assert.Equal(t, 80, clampQuality(80, false))
	assert.Equal(t, JPEGQuality, clampQuality(MaxQuality, false))
	assert.Equal(t, MaxQuality, clampQuality(500, true))
}
