// Package hypertext renders the HTML documents of the polling protocol.
// Every route has a writer per document kind; bootstrap documents are
// deliberately distinct from their steady-state counterparts because
// frame-based clients reload frames independently and the server tells
// first load from reload purely by which document it served last.
package hypertext

import (
	"html/template"
	"io"
)

// NonCharKeyList enumerates the non-character key names a client may
// encode into event tokens. Served inside the main document so the
// client and server agree on the key grammar.
const NonCharKeyList = "BACKSPACE/TAB/ENTER/SHIFT/CTRL/ALT/ESC/SPACE/PGUP/PGDOWN/END/HOME/LEFT/UP/RIGHT/DOWN/INSERT/DELETE"

var (
	newWindowTmpl = template.Must(template.New("newWindow").Parse(
		`<!DOCTYPE html>
<html>
<head>
<meta http-equiv="refresh" content="0; url=/{{.SessionID}}/">
<title>retroview</title>
</head>
<body>
<p><a href="/{{.SessionID}}/">Open viewer session {{.SessionID}}</a></p>
</body>
</html>
`))

	preMainTmpl = template.Must(template.New("preMain").Parse(
		`<!DOCTYPE html>
<html>
<head>
<meta http-equiv="refresh" content="0">
<title>retroview</title>
</head>
<body></body>
</html>
`))

	mainTmpl = template.Must(template.New("main").Parse(
		`<!DOCTYPE html>
<html>
<head><title>retroview</title></head>
<frameset rows="0,*,0" border="0">
<frame name="prev" src="/{{.SessionID}}/prev/" scrolling="no" noresize>
<frame name="view" src="/{{.SessionID}}/image/{{.MainIdx}}/1/1/{{.Width}}/{{.Height}}/0/" scrolling="no" noresize>
<frame name="next" src="/{{.SessionID}}/next/" scrolling="no" noresize>
</frameset>
<noframes>
<body>
<img src="/{{.SessionID}}/image/{{.MainIdx}}/1/1/{{.Width}}/{{.Height}}/0/" alt="page">
<iframe src="/{{.SessionID}}/iframe/{{.MainIdx}}/0/" width="0" height="0"></iframe>
<!-- keys: {{.NonCharKeys}} -->
</body>
</noframes>
</html>
`))

	prePrevTmpl = template.Must(template.New("prePrev").Parse(
		`<!DOCTYPE html>
<html>
<head>
<meta http-equiv="refresh" content="0">
<title>retroview</title>
</head>
<body></body>
</html>
`))

	prevTmpl = template.Must(template.New("prev").Parse(
		`<!DOCTYPE html>
<html>
<head><title>retroview</title></head>
<body>
<p><a href="/{{.SessionID}}/">Return to page</a></p>
</body>
</html>
`))

	nextTmpl = template.Must(template.New("next").Parse(
		`<!DOCTYPE html>
<html>
<head><title>retroview</title></head>
<body>
<p><a href="/{{.SessionID}}/">Return to page</a></p>
</body>
</html>
`))

	popupIframeTmpl = template.Must(template.New("popupIframe").Parse(
		`<!DOCTYPE html>
<html>
<head>
<meta http-equiv="refresh" content="0; url=/{{.PopupSessionID}}/">
<title>retroview popup</title>
</head>
<body>
<p><a href="/{{.PopupSessionID}}/" target="_blank">Open popup window</a></p>
</body>
</html>
`))

	clipboardIframeTmpl = template.Must(template.New("clipboardIframe").Parse(
		`<!DOCTYPE html>
<html>
<head><title>clipboard</title></head>
<body>
<form method="GET" action="/{{.SessionID}}/">
<textarea name="clipboard" rows="4" cols="40"></textarea>
<input type="submit" value="Paste">
</form>
</body>
</html>
`))

	downloadIframeTmpl = template.Must(template.New("downloadIframe").Parse(
		`<!DOCTYPE html>
<html>
<head>
<meta http-equiv="refresh" content="0; url=/{{.SessionID}}/download/{{.DownloadIdx}}/{{.FileName}}">
<title>download</title>
</head>
<body>
<p><a href="/{{.SessionID}}/download/{{.DownloadIdx}}/{{.FileName}}">Download {{.FileName}}</a></p>
</body>
</html>
`))
)

// NewWindowData parameterizes the redirect page served when a fresh
// session is created for a top-level viewer.
type NewWindowData struct {
	SessionID uint64
}

func WriteNewWindow(w io.Writer, data NewWindowData) error {
	return newWindowTmpl.Execute(w, data)
}

// PreMainData parameterizes the first-visit main bootstrap document.
type PreMainData struct {
	SessionID uint64
}

func WritePreMain(w io.Writer, data PreMainData) error {
	return preMainTmpl.Execute(w, data)
}

// MainData parameterizes the steady-state three-frame main document.
type MainData struct {
	SessionID   uint64
	MainIdx     uint64
	Width       int
	Height      int
	NonCharKeys string
}

func WriteMain(w io.Writer, data MainData) error {
	if data.NonCharKeys == "" {
		data.NonCharKeys = NonCharKeyList
	}
	return mainTmpl.Execute(w, data)
}

// FrameData parameterizes the prev/next placeholder documents.
type FrameData struct {
	SessionID uint64
}

func WritePrePrev(w io.Writer, data FrameData) error {
	return prePrevTmpl.Execute(w, data)
}

func WritePrev(w io.Writer, data FrameData) error {
	return prevTmpl.Execute(w, data)
}

func WriteNext(w io.Writer, data FrameData) error {
	return nextTmpl.Execute(w, data)
}

// PopupIframeData parameterizes the popup embedding document.
type PopupIframeData struct {
	PopupSessionID uint64
}

func WritePopupIframe(w io.Writer, data PopupIframeData) error {
	return popupIframeTmpl.Execute(w, data)
}

// ClipboardIframeData parameterizes the paste helper document.
type ClipboardIframeData struct {
	SessionID uint64
}

func WriteClipboardIframe(w io.Writer, data ClipboardIframeData) error {
	return clipboardIframeTmpl.Execute(w, data)
}

// DownloadIframeData parameterizes the download redirect document.
type DownloadIframeData struct {
	SessionID   uint64
	DownloadIdx uint64
	FileName    string
}

func WriteDownloadIframe(w io.Writer, data DownloadIframeData) error {
	return downloadIframeTmpl.Execute(w, data)
}
