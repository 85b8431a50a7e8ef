package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroview/retroview/internal/browser"
)

type fakeDownload struct {
	name string
	data []byte
}

func (d *fakeDownload) Name() string { return d.name }

func (d *fakeDownload) Serve(r browser.Responder) {
	r.SendData(200, "application/octet-stream", d.data)
}

func TestDownloadLifecycle(t *testing.T) {
	h := newHarness(t, defaultTestConfig(), 4)
	id, err := h.m.CreateSession()
	require.NoError(t, err)

	h.get(t, id, fmt.Sprintf("/%d/", id))
	h.get(t, id, fmt.Sprintf("/%d/", id))

	s := h.session(t, id)
	file := &fakeDownload{name: "report.pdf", data: []byte("pdf-bytes")}
	s.DownloadObserver().OnDownloadCompleted(file)

	// The completed download announces itself through an iframe job
	// that redirects the client to the download route.
	rec := h.get(t, id, fmt.Sprintf("/%d/iframe/1/1/", id))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("/%d/download/1/report.pdf", id))

	// Some client browsers fetch a download more than once, so the index
	// stays resolvable.
	for i := 0; i < 2; i++ {
		rec = h.get(t, id, fmt.Sprintf("/%d/download/1/report.pdf", id))
		require.Equal(t, 200, rec.Code)
		assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, "pdf-bytes", rec.Body.String())
	}

	rec = h.get(t, id, fmt.Sprintf("/%d/download/2/whatever", id))
	require.Equal(t, 400, rec.Code)
	assert.Equal(t, "ERROR: Outdated download index", rec.Body.String())
}

func TestDownloadExpiresAfterTTL(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.DownloadTTL = 50 * time.Millisecond
	h := newHarness(t, cfg, 4)

	id, err := h.m.CreateSession()
	require.NoError(t, err)
	h.get(t, id, fmt.Sprintf("/%d/", id))
	h.get(t, id, fmt.Sprintf("/%d/", id))

	s := h.session(t, id)
	s.DownloadObserver().OnDownloadCompleted(&fakeDownload{name: "a.bin", data: []byte("x")})

	rec := h.get(t, id, fmt.Sprintf("/%d/iframe/1/1/", id))
	require.Equal(t, 200, rec.Code)

	rec = h.get(t, id, fmt.Sprintf("/%d/download/1/a.bin", id))
	require.Equal(t, 200, rec.Code)

	require.Eventually(t, func() bool {
		rec := h.get(t, id, fmt.Sprintf("/%d/download/1/a.bin", id))
		return rec.Code == 400
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDownloadIndicesAreSequentialPerSession(t *testing.T) {
	h := newHarness(t, defaultTestConfig(), 4)
	id, err := h.m.CreateSession()
	require.NoError(t, err)
	h.get(t, id, fmt.Sprintf("/%d/", id))
	h.get(t, id, fmt.Sprintf("/%d/", id))

	s := h.session(t, id)
	obs := s.DownloadObserver()
	obs.OnDownloadCompleted(&fakeDownload{name: "a.bin", data: []byte("a")})
	obs.OnDownloadCompleted(&fakeDownload{name: "b.bin", data: []byte("b")})

	rec := h.get(t, id, fmt.Sprintf("/%d/iframe/1/1/", id))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "/download/1/a.bin")

	rec = h.get(t, id, fmt.Sprintf("/%d/iframe/1/2/", id))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "/download/2/b.bin")

	rec = h.get(t, id, fmt.Sprintf("/%d/download/2/b.bin", id))
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "b", rec.Body.String())
}

func TestDownloadProgressReachesControlBar(t *testing.T) {
	h := newHarness(t, defaultTestConfig(), 4)
	id, err := h.m.CreateSession()
	require.NoError(t, err)

	obs := h.session(t, id).DownloadObserver()
	obs.OnPendingDownloadCountChanged(2)
	obs.OnDownloadProgressChanged([]int{40, 90})

	w := h.widget(t, 0)
	onLoop(t, h.m.Loop(), func() {
		assert.Equal(t, 2, w.bar.pendingCount)
		assert.Equal(t, []int{40, 90}, w.bar.progress)
	})
}
