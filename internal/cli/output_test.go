package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-lipsync/internal/cue"
	"github.com/alnah/go-lipsync/internal/pipeline"
)

func TestEncodeResult(t *testing.T) {
	t.Parallel()

	res := pipeline.Result{MouthCues: []cue.MouthCue{{Start: 0, End: 0.1, Value: cue.ShapeX}}}

	var compact bytes.Buffer
	if err := encodeResult(&compact, res, true); err != nil {
		t.Fatal(err)
	}
	if want := `{"mouthCues":[{"start":0,"end":0.1,"value":"X"}]}` + "\n"; compact.String() != want {
		t.Errorf("compact = %q, want %q", compact.String(), want)
	}

	var indented bytes.Buffer
	if err := encodeResult(&indented, res, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(indented.String(), "\n  \"mouthCues\": [") {
		t.Errorf("indented = %q, want two-space indent", indented.String())
	}
}

func TestWriteResult_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	if err := writeResult(nil, path, pipeline.ReadyResult(), true); err != nil {
		t.Fatalf("writeResult() unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"status":"OK"`) {
		t.Errorf("file = %s", data)
	}

	err = writeResult(nil, path, pipeline.ReadyResult(), true)
	if !errors.Is(err, ErrOutputExists) {
		t.Errorf("second writeResult() error = %v, want ErrOutputExists", err)
	}
}

func TestWriteResult_RemovesPartialFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	if err := writeResult(nil, path, make(chan int), true); err == nil {
		t.Fatal("writeResult(unencodable) expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("partial output left behind: %v", err)
	}
}

func TestReadInput(t *testing.T) {
	t.Parallel()

	path := createTestAudioFile(t, "a.wav")

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "stdin empty path", path: "", want: "stdin data"},
		{name: "stdin dash", path: "-", want: "stdin data"},
		{name: "file", path: path, want: "fake audio content"},
		{name: "missing", path: "/nonexistent/a.wav", wantErr: ErrFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := readInput(strings.NewReader("stdin data"), tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("readInput() error = %v, want %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("readInput() = %q, want %q", got, tt.want)
			}
		})
	}
}
