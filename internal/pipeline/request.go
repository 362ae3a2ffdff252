package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alnah/go-lipsync/internal/cue"
)

// Client-facing messages.
const (
	noAudioMessage = "No audio data provided"
	readyMessage   = "Rhubarb model is ready"
	statusOK       = "OK"
)

// Request is one lip sync request.
type Request struct {
	AudioData string `json:"audioData"`
	WakeUp    bool   `json:"wakeUp"`
}

// ParseRequest reads a request object. Both camelCase and snake_case keys are
// accepted, and the object may be wrapped in {"input": {...}}.
func ParseRequest(data []byte) (Request, error) {
	if !gjson.ValidBytes(data) {
		return Request{}, fmt.Errorf("%w: body is not valid JSON", ErrInvalidRequest)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Request{}, fmt.Errorf("%w: body must be a JSON object", ErrInvalidRequest)
	}
	if input := root.Get("input"); input.IsObject() {
		root = input
	}

	var req Request
	if v := firstOf(root, "audioData", "audio_data"); v.Exists() {
		if v.Type != gjson.String && v.Type != gjson.Null {
			return Request{}, fmt.Errorf("%w: audioData must be a string", ErrInvalidRequest)
		}
		req.AudioData = v.String()
	}
	if v := firstOf(root, "wakeUp", "wake_up"); v.Exists() {
		req.WakeUp = v.Bool()
	}
	return req, nil
}

func firstOf(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// Result is the response to a request. MouthCues is always serialized as an
// array, empty when there is nothing to report.
type Result struct {
	Status    string         `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	MouthCues []cue.MouthCue `json:"mouthCues"`
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	p := plain(r)
	if p.MouthCues == nil {
		p.MouthCues = []cue.MouthCue{}
	}
	return json.Marshal(p)
}

// Failed reports whether r carries an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// ErrorResult returns a failed result with the given message.
func ErrorResult(msg string) Result {
	return Result{Error: msg, MouthCues: []cue.MouthCue{}}
}

// ReadyResult returns the readiness payload answered to wake-up requests.
func ReadyResult() Result {
	return Result{Status: statusOK, Message: readyMessage, MouthCues: []cue.MouthCue{}}
}

// DecodeAudio decodes standard base64 audio. A "data:<mime>;base64," prefix,
// missing padding and ASCII whitespace anywhere in the payload (such as MIME
// line breaks every 76 characters) are tolerated.
func DecodeAudio(s string) ([]byte, error) {
	s = strings.Map(dropSpace, s)
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("%w: data URI is not base64 encoded", ErrDecode)
		}
		s = payload
	}
	if s == "" {
		return nil, ErrNoAudio
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrNoAudio
	}
	return data, nil
}

func dropSpace(r rune) rune {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return -1
	}
	return r
}

// Process runs data through the pipeline. It never fails: fatal errors are
// reported in Result.Error with no cues.
func (p *Pipeline) Process(ctx context.Context, data []byte) Result {
	cues, err := p.Run(ctx, data)
	if err != nil {
		return errorResult(err)
	}
	return Result{MouthCues: cues}
}

// Preflight answers the requests that need no processing: wake-up requests
// and requests without audio. ok is false when req must be processed.
func Preflight(req Request) (res Result, ok bool) {
	if req.WakeUp {
		return ReadyResult(), true
	}
	if strings.TrimSpace(req.AudioData) == "" {
		return ErrorResult(noAudioMessage), true
	}
	return Result{}, false
}

// Predict answers a request. Wake-up requests and requests without audio are
// answered without touching the filesystem.
func (p *Pipeline) Predict(ctx context.Context, req Request) Result {
	if res, ok := Preflight(req); ok {
		return res
	}

	data, err := DecodeAudio(req.AudioData)
	if err != nil {
		return errorResult(err)
	}
	return p.Process(ctx, data)
}

func errorResult(err error) Result {
	if errors.Is(err, ErrNoAudio) {
		return ErrorResult(noAudioMessage)
	}
	return ErrorResult(err.Error())
}
