package ffmpeg

import "errors"

// ErrConversion indicates ffmpeg failed to transcode audio.
var ErrConversion = errors.New("audio conversion failed")

// ErrProbe indicates ffprobe failed or returned an unusable duration.
var ErrProbe = errors.New("duration probe failed")
