package coders

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/coder"
)

// Coder kinds accepted in the config file
const (
	KindIdentity = "identity"
	KindZstd     = "zstd"
	KindPipeline = "pipeline"
)

// ErrInvalidEntry is returned for a config entry that cannot be applied
var ErrInvalidEntry = errors.New("invalid coder entry")

// Entry binds one coder to a set of topics and/or types.
//
//	- name: camera
//	  topics: [rt/camera/raw]
//	  encoder: [gst-launch-1.0, -q, fdsrc, "!", x264enc, "!", fdsink]
//	  decoder: [gst-launch-1.0, -q, fdsrc, "!", avdec_h264, "!", fdsink]
//	- name: compressed-clouds
//	  coder: zstd
//	  level: better
//	  types: [sensor_msgs::msg::dds_::PointCloud2_]
//
// When Coder is empty an entry with encoder/decoder commands is a pipeline
// and any other entry is identity.
type Entry struct {
	Name    string   `yaml:"name"`
	Coder   string   `yaml:"coder"`
	Topics  []string `yaml:"topics"`
	Types   []string `yaml:"types"`
	Encoder []string `yaml:"encoder"`
	Decoder []string `yaml:"decoder"`
	Level   string   `yaml:"level"`
}

// Kind returns the entry's coder kind with the default applied
func (e *Entry) Kind() string {
	if e.Coder != "" {
		return e.Coder
	}
	if len(e.Encoder) > 0 || len(e.Decoder) > 0 {
		return KindPipeline
	}
	return KindIdentity
}

// Validate checks that the entry names a known coder and binds something
func (e *Entry) Validate() error {
	if len(e.Topics) == 0 && len(e.Types) == 0 {
		return fmt.Errorf("%w %q: no topics or types", ErrInvalidEntry, e.Name)
	}
	switch e.Kind() {
	case KindIdentity:
	case KindZstd:
		if ok, _ := zstd.EncoderLevelFromString(e.Level); e.Level != "" && !ok {
			return fmt.Errorf("%w %q: unknown zstd level %q", ErrInvalidEntry, e.Name, e.Level)
		}
	case KindPipeline:
		if len(e.Encoder) == 0 || len(e.Decoder) == 0 {
			return fmt.Errorf("%w %q: pipeline needs encoder and decoder", ErrInvalidEntry, e.Name)
		}
	default:
		return fmt.Errorf("%w %q: unknown coder %q", ErrInvalidEntry, e.Name, e.Coder)
	}
	return nil
}

func (e *Entry) factory(logger *slog.Logger) coder.Factory {
	switch e.Kind() {
	case KindZstd:
		return ZstdFactory(e.Level)
	case KindPipeline:
		return PipelineFactory(e.Encoder, e.Decoder, logger)
	default:
		return coder.IdentityFactory
	}
}

// Config is the content of a coder config file: a YAML list of entries
type Config []Entry

// LoadConfig reads and validates a coder config file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read coder config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a coder config document
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse coder config: %w", err)
	}
	for i := range cfg {
		if err := cfg[i].Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Apply registers every entry on reg. Later entries override earlier ones
// for the same topic or type.
func Apply(reg *coder.Registry, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for i := range cfg {
		e := &cfg[i]
		f := e.factory(logger)
		for _, topic := range e.Topics {
			if err := reg.RegisterTopic(topic, f); err != nil {
				return fmt.Errorf("coder %q topic %q: %w", e.Name, topic, err)
			}
		}
		for _, typeName := range e.Types {
			if err := reg.RegisterType(typeName, f); err != nil {
				return fmt.Errorf("coder %q type %q: %w", e.Name, typeName, err)
			}
		}
		logger.Info("registered coder", "component", "coders", "name", e.Name, "kind", e.Kind(),
			"topics", e.Topics, "types", e.Types)
	}
	return nil
}
