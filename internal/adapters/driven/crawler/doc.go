// Package crawler implements the driven.Crawler port by fetching a
// record's rendered page over HTTP and extracting the text of its main
// content element.
package crawler
