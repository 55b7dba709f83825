// Package capture turns the latest payload into a continuously playing video
// stream: a layout is rasterized into a fixed-size bitmap whenever the payload
// or theme changes, a synthetic track samples that bitmap at a fixed frame
// rate into an MJPEG sink, and a presenter can pop the stream into an
// always-on-top player. Every timer, track and buffer is owned by a Guard.
package capture
