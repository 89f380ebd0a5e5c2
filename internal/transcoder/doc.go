// Package transcoder drives ffmpeg as a child process.
//
// It builds the argument vector from the requested quality preset and the
// presence of a separate audio track, reads the diagnostic stream for the
// total duration and the -progress stream for elapsed time, and reports the
// exit status asynchronously through Run.Done.
package transcoder
