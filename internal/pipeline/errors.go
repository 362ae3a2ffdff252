package pipeline

import "errors"

// ErrNoAudio indicates a request or run without audio bytes.
var ErrNoAudio = errors.New("no audio data provided")

// ErrDecode indicates the audio payload is not valid base64.
var ErrDecode = errors.New("invalid base64 audio data")

// ErrInvalidRequest indicates a request body that is not a request object.
var ErrInvalidRequest = errors.New("invalid request")
