package main

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/labforge/equipment-mgmt/internal/pkg/application/prediction"
	"github.com/labforge/equipment-mgmt/internal/pkg/infrastructure/scorer"
	"github.com/matryer/is"
)

func TestParseConfigFile(t *testing.T) {
	is := is.New(t)

	cfg, err := parseExternalConfigFile(io.NopCloser(strings.NewReader(configYaml)))
	is.NoErr(err)

	is.Equal("http://scorer:5000", cfg.Scorer.URL)
	is.Equal(3, cfg.Scorer.TimeoutSeconds)
	is.Equal(8, cfg.Scorer.MaxConcurrent)
}

func TestParseConfigFileDefaults(t *testing.T) {
	is := is.New(t)

	cfg, err := parseExternalConfigFile(io.NopCloser(strings.NewReader("scorer:\n  url: http://scorer:5000\n")))
	is.NoErr(err)

	is.Equal(int(scorer.DefaultTimeout/time.Second), cfg.Scorer.TimeoutSeconds)
	is.Equal(prediction.DefaultMaxConcurrent, cfg.Scorer.MaxConcurrent)
}

const configYaml string = `
scorer:
  url: http://scorer:5000
  timeoutSeconds: 3
  maxConcurrent: 8
`
