package session

// The transport cannot carry out-of-band metadata, so two small
// enumerations ride on the pixel dimensions of every served image: the
// width modulo 2 says whether an iframe job is waiting, the height
// modulo 3 carries the cursor shape. The padded backing buffer is
// modulus-1 pixels larger per axis than the logical viewport, and the
// served sub-rectangle is trimmed down until each dimension hits the
// wanted residue. Clients recompute the same modular arithmetic from
// the image dimensions alone, so these exact values are part of the
// wire convention and must never change.
const (
	widthSignalModulus  = 2
	heightSignalModulus = 3

	widthSignalNoNewIframe = 0
	widthSignalNewIframe   = 1
)

// setWidthSignal re-sends the viewport when the signal value changes,
// even if no pixel changed, so the client observes the new dimensions
// promptly.
func (s *Session) setWidthSignal(signal int) {
	if signal != s.widthSignal {
		s.widthSignal = signal
		s.pushViewportToCompressor()
	}
}

func (s *Session) setHeightSignal(signal int) {
	if signal != s.heightSignal {
		s.heightSignal = signal
		s.pushViewportToCompressor()
	}
}

// pushViewportToCompressor trims the padded viewport down to the
// dimensions encoding the current signal values and hands the result
// to the compressor.
func (s *Session) pushViewportToCompressor() {
	width := s.paddedViewport.Width()
	for width%widthSignalModulus != s.widthSignal {
		width--
	}
	height := s.paddedViewport.Height()
	for height%heightSignalModulus != s.heightSignal {
		height--
	}
	s.compressor.Update(s.paddedViewport.SubRect(0, 0, width, height))
}
