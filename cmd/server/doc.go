// Command server runs the retroview HTTP front end: a polling remote
// page viewer for clients that can only issue sequential GET requests
// and render the returned image or HTML document.
package main
