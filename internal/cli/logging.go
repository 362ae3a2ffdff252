package cli

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/alnah/go-lipsync/internal/config"
)

// newLogger builds the logger shared by the pipeline, scratch store and
// server. Level and format come from the validated configuration.
func newLogger(w io.Writer, cfg config.Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)
	if cfg.LogFormat == config.LogFormatJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
