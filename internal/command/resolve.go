package command

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Tool describes an external binary the pipeline depends on.
type Tool struct {
	Name        string // Binary name looked up on PATH.
	EnvVar      string // Environment variable holding an explicit path.
	VersionFlag string // Flag that prints the version banner.
}

// Known tools.
var (
	FFmpeg  = Tool{Name: "ffmpeg", EnvVar: "FFMPEG_PATH", VersionFlag: "-version"}
	FFprobe = Tool{Name: "ffprobe", EnvVar: "FFPROBE_PATH", VersionFlag: "-version"}
	Rhubarb = Tool{Name: "rhubarb", EnvVar: "RHUBARB_PATH", VersionFlag: "--version"}
)

// ---------------------------------------------------------------------------
// Interfaces - local to this package, following Go idiom
// ---------------------------------------------------------------------------

// envProvider abstracts environment and path lookup operations.
type envProvider interface {
	Getenv(key string) string
	LookPath(file string) (string, error)
}

// fileStatter retrieves file information.
type fileStatter interface {
	Stat(name string) (os.FileInfo, error)
}

// Compile-time interface verification.
var (
	_ envProvider = osEnvProvider{}
	_ fileStatter = osFileStatter{}
)

// osEnvProvider implements envProvider using os and exec packages.
type osEnvProvider struct{}

func (osEnvProvider) Getenv(key string) string {
	return os.Getenv(key)
}

func (osEnvProvider) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// osFileStatter implements fileStatter using os.Stat.
type osFileStatter struct{}

func (osFileStatter) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// ---------------------------------------------------------------------------
// Resolver - testable tool resolution with dependency injection
// ---------------------------------------------------------------------------

// Resolver finds external tool binaries.
type Resolver struct {
	env   envProvider
	files fileStatter
	goos  string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEnvProvider sets the environment provider implementation.
func WithEnvProvider(e envProvider) ResolverOption {
	return func(r *Resolver) { r.env = e }
}

// WithFileStatter sets the file statter implementation.
func WithFileStatter(f fileStatter) ResolverOption {
	return func(r *Resolver) { r.files = f }
}

// WithPlatform sets the target OS used for install instructions.
func WithPlatform(goos string) ResolverOption {
	return func(r *Resolver) { r.goos = goos }
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		env:   osEnvProvider{},
		files: osFileStatter{},
		goos:  runtime.GOOS,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds tool using the following precedence:
//  1. override (from configuration or flags; error if set but invalid)
//  2. the tool's environment variable (error if set but invalid)
//  3. system PATH
func (r *Resolver) Resolve(tool Tool, override string) (string, error) {
	if override != "" {
		if _, err := r.files.Stat(override); err != nil {
			return "", fmt.Errorf("%w: %s path %q is configured but not usable: %v",
				ErrNotFound, tool.Name, override, err)
		}
		return override, nil
	}

	if tool.EnvVar != "" {
		if envPath := r.env.Getenv(tool.EnvVar); envPath != "" {
			if _, err := r.files.Stat(envPath); err != nil {
				return "", fmt.Errorf("%w: %s is set to %q but binary not found",
					ErrNotFound, tool.EnvVar, envPath)
			}
			return envPath, nil
		}
	}

	if path, err := r.env.LookPath(tool.Name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s is not on PATH\n\n%s",
		ErrNotFound, tool.Name, r.installInstructions(tool))
}

// installInstructions returns platform-specific instructions for tool.
func (r *Resolver) installInstructions(tool Tool) string {
	if tool.Name == Rhubarb.Name {
		return fmt.Sprintf(`To install Rhubarb Lip Sync, download a release from
https://github.com/DanielSWolf/rhubarb-lip-sync/releases and put it on PATH.

Or set %s to your rhubarb binary.`, tool.EnvVar)
	}

	switch r.goos {
	case "darwin":
		return fmt.Sprintf(`To install FFmpeg (provides %s):
  brew install ffmpeg

Or set %s to your %s binary.`, tool.Name, tool.EnvVar, tool.Name)
	case "linux":
		return fmt.Sprintf(`To install FFmpeg (provides %s):
  Ubuntu/Debian: sudo apt install ffmpeg
  Fedora:        sudo dnf install ffmpeg
  Arch:          sudo pacman -S ffmpeg

Or set %s to your %s binary.`, tool.Name, tool.EnvVar, tool.Name)
	case "windows":
		return fmt.Sprintf(`To install FFmpeg (provides %s):
  winget install ffmpeg

Or set %s to your %s.exe.`, tool.Name, tool.EnvVar, tool.Name)
	default:
		return fmt.Sprintf(`To install FFmpeg, download from https://ffmpeg.org/download.html
Or set %s to your %s binary.`, tool.EnvVar, tool.Name)
	}
}

// Version runs the tool's version flag and returns the first output line.
// Rhubarb prints its banner on stdout, ffmpeg and ffprobe as well, but some
// builds use stderr, so both streams are checked.
func Version(ctx context.Context, runner Runner, tool Tool, path string) (string, error) {
	res, err := runner.Run(ctx, path, []string{tool.VersionFlag})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(string(res.Stdout))
	if out == "" {
		out = strings.TrimSpace(string(res.Stderr))
	}
	if !res.Success() && out == "" {
		return "", fmt.Errorf("%s %s exited with status %d", tool.Name, tool.VersionFlag, res.ExitCode)
	}
	line, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(line), nil
}
