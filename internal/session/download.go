package session

import (
	"io"

	"go.uber.org/zap"

	"github.com/retroview/retroview/internal/browser"
	"github.com/retroview/retroview/internal/hypertext"
	"github.com/retroview/retroview/internal/runloop"
)

type downloadEntry struct {
	file  browser.CompletedDownload
	timer *runloop.Timer
}

// onDownloadCompleted queues an iframe job redirecting the client to
// the download route. Some client browsers issue more than one request
// to fetch one download, so the file stays resolvable under its index
// for a short grace window instead of exactly once.
func (s *Session) onDownloadCompleted(file browser.CompletedDownload) {
	s.enqueueIframeJob(func(req *Request) {
		s.downloadIdx++
		idx := s.downloadIdx

		timer := runloop.NewTimer(s.loop, s.cfg.DownloadTTL)
		s.downloads[idx] = downloadEntry{file: file, timer: timer}
		timer.Arm(func() {
			delete(s.downloads, idx)
		})

		s.log.Info("download ready",
			zap.Uint64("download_idx", idx),
			zap.String("file", file.Name()),
		)

		req.SendHTML(200, func(w io.Writer) error {
			return hypertext.WriteDownloadIframe(w, hypertext.DownloadIframeData{
				SessionID:   s.id,
				DownloadIdx: idx,
				FileName:    file.Name(),
			})
		})
	})
}

func (s *Session) handleDownload(req *Request, downloadIdx uint64) {
	entry, ok := s.downloads[downloadIdx]
	if !ok {
		req.SendText(400, "ERROR: Outdated download index")
		return
	}
	s.metrics.DownloadsServed.Inc()
	entry.file.Serve(req)
}

// downloadObserver marshals download-manager notifications onto the
// control loop.
type downloadObserver struct {
	s *Session
}

func (o *downloadObserver) OnPendingDownloadCountChanged(count int) {
	s := o.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		s.widget.ControlBar().SetPendingDownloadCount(count)
	})
}

func (o *downloadObserver) OnDownloadProgressChanged(progress []int) {
	s := o.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		s.widget.ControlBar().SetDownloadProgress(progress)
	})
}

func (o *downloadObserver) OnDownloadCompleted(file browser.CompletedDownload) {
	s := o.s
	s.loop.Post(func() {
		if s.state == StateClosed {
			return
		}
		s.onDownloadCompleted(file)
	})
}
