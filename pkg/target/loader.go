package target

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/omnitarget/pkg/processors"
	"github.com/wayneeseguin/omnitarget/pkg/queue"
	"github.com/wayneeseguin/omnitarget/pkg/rotation"
	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// FileConfig is the on-disk form of Config. Enumerations are spelled out as
// names; fields left out keep their DefaultConfig value.
//
//	app: billing
//	base_path: /var/log/billing
//	rotation:
//	  scheme: datetime
//	  granularity: hour
//	  max_size: 10485760
//	processors:
//	  - kind: compress
//	    algorithm: zstd
//	    on_startup: true
//	  - kind: prune_count
//	    keep: 48
type FileConfig struct {
	App           string `koanf:"app"`
	BasePath      string `koanf:"base_path"`
	BasePathMode  string `koanf:"base_path_mode"`
	Extension     string `koanf:"extension"`
	Threading     string `koanf:"threading"`
	QueueCapacity int    `koanf:"queue_capacity"`
	Overflow      string `koanf:"overflow"`
	Priority      string `koanf:"priority"`

	Rotation struct {
		Scheme      string `koanf:"scheme"`
		Granularity string `koanf:"granularity"`
		Width       int    `koanf:"width"`
		MaxSize     int64  `koanf:"max_size"`
		MaxEvents   int64  `koanf:"max_events"`
		UTC         bool   `koanf:"utc"`
	} `koanf:"rotation"`

	Newline         string `koanf:"newline"`
	TimestampFormat string `koanf:"timestamp_format"`
	UTC             bool   `koanf:"utc"`
	SeverityFormat  string `koanf:"severity_format"`
	WriteSeverity   string `koanf:"write_severity"`

	Echo  bool `koanf:"echo"`
	Color bool `koanf:"color"`

	Processors          []processors.Spec `koanf:"processors"`
	StartupSweep        bool              `koanf:"startup_sweep"`
	AsyncProcessors     *bool             `koanf:"async_processors"`
	ProcessorBacklog    int               `koanf:"processor_backlog"`
	MaintenanceSchedule string            `koanf:"maintenance_schedule"`
}

// LoadConfig reads a YAML (.yaml, .yml) or JSON (.json) file into a Config
// based on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the caller
	if err != nil {
		return Config{}, &Error{Kind: KindConfiguration, Op: "load", Path: path, Err: err}
	}
	cfg, err := ParseConfig(data, filepath.Ext(path))
	if err != nil {
		return Config{}, &Error{Kind: KindConfiguration, Op: "load", Path: path, Err: err}
	}
	return cfg, nil
}

// ParseConfig parses data in the format named by ext (".yaml", ".yml" or ".json").
func ParseConfig(data []byte, ext string) (Config, error) {
	var parser koanf.Parser
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return Config{}, errors.Wrapf(ErrInvalidConfig, "unsupported config format %q", ext)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	var fc FileConfig
	if err := k.UnmarshalWithConf("", &fc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	return fc.Config()
}

// Config converts fc, filling what it leaves out from DefaultConfig.
func (fc *FileConfig) Config() (Config, error) {
	cfg := DefaultConfig()
	cfg.App = fc.App
	if fc.BasePath != "" {
		cfg.BasePath = fc.BasePath
	}
	if fc.Extension != "" {
		cfg.Extension = fc.Extension
	}
	cfg.QueueCapacity = fc.QueueCapacity
	cfg.TimestampFormat = orDefault(fc.TimestampFormat, cfg.TimestampFormat)
	cfg.UTC = fc.UTC
	cfg.Echo = fc.Echo
	cfg.Color = fc.Color
	cfg.Processors = fc.Processors
	cfg.StartupSweep = fc.StartupSweep
	if fc.AsyncProcessors != nil {
		cfg.AsyncProcessors = *fc.AsyncProcessors
	}
	if fc.ProcessorBacklog > 0 {
		cfg.ProcessorBacklog = fc.ProcessorBacklog
	}
	cfg.MaintenanceSchedule = fc.MaintenanceSchedule

	var err error
	if cfg.BasePathMode, err = ParseBasePathMode(fc.BasePathMode); err != nil {
		return cfg, err
	}
	if cfg.Threading, err = ParseThreadingMode(fc.Threading); err != nil {
		return cfg, err
	}
	if cfg.Overflow, err = parseOverflow(fc.Overflow); err != nil {
		return cfg, err
	}
	if cfg.Priority, err = types.ParsePriority(fc.Priority); err != nil {
		return cfg, err
	}
	if cfg.Newline, err = types.ParseNewline(fc.Newline); err != nil {
		return cfg, err
	}
	if cfg.SeverityFormat, err = types.ParseSeverityFormat(fc.SeverityFormat); err != nil {
		return cfg, err
	}
	if fc.WriteSeverity != "" {
		if cfg.WriteSeverity, err = types.ParseSeverity(fc.WriteSeverity); err != nil {
			return cfg, err
		}
	}

	r := fc.Rotation
	if cfg.Rotation.Scheme, err = rotation.ParseScheme(r.Scheme); err != nil {
		return cfg, err
	}
	if cfg.Rotation.Granularity, err = rotation.ParseGranularity(r.Granularity); err != nil {
		return cfg, err
	}
	cfg.Rotation.Width = r.Width
	cfg.Rotation.MaxSize = r.MaxSize
	cfg.Rotation.MaxEvents = r.MaxEvents
	cfg.Rotation.UTC = r.UTC
	return cfg, nil
}

func parseOverflow(name string) (queue.Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "grow":
		return queue.OverflowGrow, nil
	case "block":
		return queue.OverflowBlock, nil
	case "drop":
		return queue.OverflowDrop, nil
	}
	return queue.OverflowGrow, errors.Errorf("unknown overflow policy %q", name)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
