package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/alnah/go-lipsync/internal/config"
)

func TestServeCmd_ServesPipeline(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv()
	served := false
	mocks.server.mockServer = &mockServer{ListenAndServeFunc: func(ctx context.Context) error {
		served = true
		return nil
	}}

	if err := execute(t, ServeCmd(env)); err != nil {
		t.Fatalf("serve unexpected error: %v", err)
	}

	if !served {
		t.Error("ListenAndServe was not called")
	}
	if got := mocks.server.Addr(); got != config.Defaults().Listen {
		t.Errorf("server addr = %q, want %q", got, config.Defaults().Listen)
	}
	if mocks.server.Predictor() != mocks.pipeline.mockPipeline {
		t.Error("server does not serve the built pipeline")
	}
	if mocks.pipeline.metrics == nil {
		t.Error("pipeline built without metrics")
	}
	if !strings.Contains(mocks.stderr.String(), "Serving on "+config.Defaults().Listen) {
		t.Errorf("stderr = %q, want listen address", mocks.stderr.String())
	}
}

func TestServeCmd_ListenFromConfig(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv()
	mocks.configLoader.LoadFunc = func(*pflag.FlagSet) (config.Config, error) {
		cfg := config.Defaults()
		cfg.Listen = "127.0.0.1:8080"
		return cfg, nil
	}
	mocks.server.mockServer = &mockServer{ListenAndServeFunc: func(context.Context) error { return nil }}

	if err := execute(t, ServeCmd(env)); err != nil {
		t.Fatalf("serve unexpected error: %v", err)
	}
	if got := mocks.server.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("server addr = %q, want 127.0.0.1:8080", got)
	}
}

func TestServeCmd_StopsOnCancel(t *testing.T) {
	t.Parallel()

	env, _ := testEnv()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := ServeCmd(env)
	cmd.SetArgs([]string{})
	cmd.SilenceUsage = true
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Errorf("serve error = %v, want nil after cancel", err)
	}
}

func TestServeCmd_Errors(t *testing.T) {
	t.Parallel()

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		env, mocks := testEnv()
		errBind := errors.New("address already in use")
		mocks.server.mockServer = &mockServer{ListenAndServeFunc: func(context.Context) error { return errBind }}

		if err := execute(t, ServeCmd(env)); !errors.Is(err, errBind) {
			t.Errorf("serve error = %v, want %v", err, errBind)
		}
	})

	t.Run("scratch dir is a file", func(t *testing.T) {
		t.Parallel()

		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		env, mocks := testEnv()
		mocks.configLoader.LoadFunc = func(*pflag.FlagSet) (config.Config, error) {
			cfg := config.Defaults()
			cfg.ScratchDir = file
			return cfg, nil
		}

		if err := execute(t, ServeCmd(env)); err == nil {
			t.Fatal("serve expected error for file scratch dir")
		}
		if mocks.tools.ResolveCalls() != 0 {
			t.Error("tools resolved despite invalid scratch dir")
		}
	})

	t.Run("config error", func(t *testing.T) {
		t.Parallel()

		env, mocks := testEnv()
		mocks.configLoader.LoadFunc = func(*pflag.FlagSet) (config.Config, error) {
			return config.Config{}, config.ErrInvalid
		}
		if err := execute(t, ServeCmd(env)); !errors.Is(err, config.ErrInvalid) {
			t.Errorf("serve error = %v, want ErrInvalid", err)
		}
	})
}
