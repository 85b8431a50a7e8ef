package session

import (
	"regexp"
	"strconv"
)

// Request grammar. The leading numeric segment is the session ID as the
// front end matched it; the engine only checks its shape and never
// compares it to its own ID (the front end already resolved the
// session, so a comparison here would be dead validation).
var (
	mainPathRE  = regexp.MustCompile(`^/[0-9]+/$`)
	prevPathRE  = regexp.MustCompile(`^/[0-9]+/prev/$`)
	nextPathRE  = regexp.MustCompile(`^/[0-9]+/next/$`)
	imagePathRE = regexp.MustCompile(
		`^/[0-9]+/image/([0-9]+)/([0-9]+)/([01])/([0-9]+)/([0-9]+)/([0-9]+)/(([A-Z0-9_-]+/)*)$`,
	)
	iframePathRE = regexp.MustCompile(
		`^/[0-9]+/iframe/([0-9]+)/[0-9]+/$`,
	)
	downloadPathRE = regexp.MustCompile(
		`^/[0-9]+/download/([0-9]+)/.*$`,
	)
	closePathRE = regexp.MustCompile(
		`^/[0-9]+/close/([0-9]+)/$`,
	)
)

// imagePoll is a parsed image-poll request.
type imagePoll struct {
	mainIdx       uint64
	imgIdx        uint64
	immediate     bool
	width         int
	height        int
	startEventIdx uint64
	events        string
}

func parseImagePath(path string) (imagePoll, bool) {
	m := imagePathRE.FindStringSubmatch(path)
	if m == nil {
		return imagePoll{}, false
	}
	mainIdx, err1 := strconv.ParseUint(m[1], 10, 64)
	imgIdx, err2 := strconv.ParseUint(m[2], 10, 64)
	width, err3 := strconv.Atoi(m[4])
	height, err4 := strconv.Atoi(m[5])
	startEventIdx, err5 := strconv.ParseUint(m[6], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return imagePoll{}, false
	}
	return imagePoll{
		mainIdx:       mainIdx,
		imgIdx:        imgIdx,
		immediate:     m[3] == "1",
		width:         width,
		height:        height,
		startEventIdx: startEventIdx,
		events:        m[7],
	}, true
}

func parseIndexPath(re *regexp.Regexp, path string) (uint64, bool) {
	m := re.FindStringSubmatch(path)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return idx, true
}
