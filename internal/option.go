package internal

import (
	"github.com/starford/ansuz/internal/embedding"
	"github.com/starford/ansuz/internal/ocr"
	"github.com/starford/ansuz/internal/onefile"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	decoder  onefile.Decoder
	embedder embedding.Embedder
	ocr      ocr.Recognizer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithDecoder overrides the backup file decoder built from config.
func WithDecoder(dec onefile.Decoder) Option {
	return func(a *application) {
		a.decoder = dec
	}
}

// WithEmbedder overrides the embedding client built from config.
func WithEmbedder(e embedding.Embedder) Option {
	return func(a *application) {
		a.embedder = e
	}
}

// WithRecognizer overrides the OCR client built from config.
func WithRecognizer(r ocr.Recognizer) Option {
	return func(a *application) {
		a.ocr = r
	}
}
