package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/mosajjal/logrelay/pkg/hec"
	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/severity"
	"github.com/mosajjal/logrelay/pkg/transform"
	"github.com/mosajjal/logrelay/pkg/transport"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is read once at startup, from flags, environment and an optional
// YAML file. Nothing is re-read afterwards.
type Config struct {
	ConfigFile string `arg:"-c,--config,env:LOGRELAY_CONFIG" help:"YAML file with labels, resource, service context and level overrides"`
	LogLevel   string `arg:"--log-level,env:LOG_LEVEL" default:"info" help:"level of logrelay's own diagnostics"`

	LogName          string            `arg:"--log-name,env:LOG_NAME" default:"pino_log"`
	Labels           map[string]string `arg:"--label,env:LOG_LABELS" help:"default labels, key=value"`
	ResourceType     string            `arg:"--resource-type,env:LOG_RESOURCE_TYPE"`
	RedirectToStdout bool              `arg:"--stdout,env:REDIRECT_TO_STDOUT" help:"write structured JSON to stdout instead of HEC"`
	MessageKey       string            `arg:"--message-key,env:MESSAGE_KEY" default:"msg"`
	ErrorKey         string            `arg:"--error-key,env:ERROR_KEY" default:"err"`
	MetadataKey      string            `arg:"--metadata-key,env:METADATA_KEY" default:"metadata"`
	HTTPRequestKey   string            `arg:"--http-request-key,env:HTTP_REQUEST_KEY" default:"httpRequest"`
	ServiceName      string            `arg:"--service-name,env:SERVICE_NAME"`
	ServiceVersion   string            `arg:"--service-version,env:SERVICE_VERSION"`
	TraceProject     string            `arg:"--trace-project,env:TRACE_PROJECT" help:"project id used to qualify ambient X-Ray trace ids"`
	Concurrency      int               `arg:"--concurrency,env:DELIVERY_CONCURRENCY" default:"1"`
	FlushInterval    time.Duration     `arg:"--flush-interval,env:FLUSH_CHECK_INTERVAL" default:"500ms"`
	FlushTimeout     time.Duration     `arg:"--flush-timeout,env:FLUSH_TIMEOUT" default:"30s"`
	Listen           string            `arg:"--listen,env:LISTEN_ADDR" default:":8080" help:"address of the push endpoint for HTTP triggered functions"`

	Region        string        `arg:"env:AWS_REGION" default:"ap-southeast-2"`
	Endpoints     []string      `arg:"--endpoint,env:HEC_ENDPOINTS"`
	TLSSkipVerify bool          `arg:"--tls-skip-verify,env:HEC_TLS_SKIP_VERIFY"`
	Proxy         string        `arg:"env:HEC_PROXY"`
	Token         string        `arg:"env:HEC_TOKEN" help:"HEC token or a Secrets Manager ARN holding it"`
	ChannelID     string        `arg:"env:HEC_CHANNEL_ID"`
	Index         string        `arg:"env:HEC_INDEX" default:"main"`
	Source        string        `arg:"env:HEC_SOURCE"`
	Sourcetype    string        `arg:"env:HEC_SOURCETYPE" default:"_json"`
	Host          string        `arg:"env:HEC_HOST"`
	Timeout       time.Duration `arg:"env:HEC_TIMEOUT" default:"5s"`
	Balance       string        `arg:"env:HEC_BALANCE" default:"roundrobin"`
	StickyTTL     time.Duration `arg:"env:HEC_STICKY_TTL" default:"5m"`
	MaxEntrySize  int           `arg:"env:HEC_MAX_ENTRY_SIZE" default:"250000"`

	S3URL                        string `arg:"env:S3_URL" help:"example: https://YOURBUCKET.s3.ap-southeast-2.amazonaws.com/YOURFOLDER/"`
	S3AccessKeyID                string `arg:"env:S3_ACCESS_KEY_ID"`
	S3AccessKeySecret            string `arg:"env:S3_ACCESS_KEY_SECRET"`
	S3ColdStorageURL             string `arg:"env:S3_COLD_STORAGE_URL"`
	S3ColdStorageCompressionType string `arg:"env:S3_COMPRESSION" default:"gzip"`

	// set from ConfigFile
	File FileConfig `arg:"-"`
}

// FileConfig is the YAML overlay
type FileConfig struct {
	LogName        string                 `yaml:"logName"`
	Labels         map[string]string      `yaml:"labels"`
	Resource       map[string]interface{} `yaml:"resource"`
	ServiceContext *models.ServiceContext `yaml:"serviceContext"`
	LevelSeverity  map[string]string      `yaml:"levelSeverity"`
}

// Parse reads flags and environment, then the YAML file if one is named
func Parse(args []string) (*Config, error) {
	var cfg Config
	p, err := arg.NewParser(arg.Config{Program: "logrelay"}, &cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.LoadFile(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustParse is Parse for main packages: it prints usage and exits on error
func MustParse() *Config {
	var cfg Config
	p := arg.MustParse(&cfg)
	if err := cfg.LoadFile(); err != nil {
		p.Fail(err.Error())
	}
	if err := cfg.Validate(); err != nil {
		p.Fail(err.Error())
	}
	return &cfg
}

// LoadFile reads ConfigFile into File. An empty ConfigFile is not an error.
func (c *Config) LoadFile() error {
	if c.ConfigFile == "" {
		return nil
	}
	b, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &c.File); err != nil {
		return fmt.Errorf("parse config file %s: %w", c.ConfigFile, err)
	}
	return nil
}

// Validate checks the settings that would otherwise fail at delivery time
func (c *Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	for name, key := range map[string]string{
		"message key":      c.MessageKey,
		"error key":        c.ErrorKey,
		"metadata key":     c.MetadataKey,
		"http request key": c.HTTPRequestKey,
	} {
		if key == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", name))
		}
	}
	if _, err := c.SeverityOverrides(); err != nil {
		errs = append(errs, err)
	}
	if !c.RedirectToStdout && len(c.Endpoints) == 0 {
		errs = append(errs, errors.New("HEC_ENDPOINTS is required unless output is redirected to stdout"))
	}
	if c.Balance != "" {
		if _, ok := hec.ParseBalanceStrategy(c.Balance); !ok {
			errs = append(errs, fmt.Errorf("unknown balance strategy %q", c.Balance))
		}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SeverityOverrides parses the level overrides from the YAML file
func (c *Config) SeverityOverrides() (map[string]severity.Severity, error) {
	if len(c.File.LevelSeverity) == 0 {
		return nil, nil
	}
	out := make(map[string]severity.Severity, len(c.File.LevelSeverity))
	for level, name := range c.File.LevelSeverity {
		sev, err := severity.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("level %q: %w", level, err)
		}
		out[level] = sev
	}
	return out, nil
}

// ServiceContext returns the configured service context, or nil. Flags win
// over the file.
func (c *Config) ServiceContext() *models.ServiceContext {
	sc := models.ServiceContext{}
	if c.File.ServiceContext != nil {
		sc = *c.File.ServiceContext
	}
	if c.ServiceName != "" {
		sc.Service = c.ServiceName
	}
	if c.ServiceVersion != "" {
		sc.Version = c.ServiceVersion
	}
	if sc.IsZero() {
		return nil
	}
	return &sc
}

// TransportConfig assembles the pipeline settings. File values are the base
// and flags win.
func (c *Config) TransportConfig() (transport.Config, error) {
	overrides, err := c.SeverityOverrides()
	if err != nil {
		return transport.Config{}, err
	}

	logName := c.LogName
	if c.File.LogName != "" && (logName == "" || logName == models.DefaultLogName) {
		logName = c.File.LogName
	}

	labels := make(map[string]string, len(c.File.Labels)+len(c.Labels))
	for k, v := range c.File.Labels {
		labels[k] = v
	}
	for k, v := range c.Labels {
		labels[k] = v
	}

	resource := make(map[string]interface{}, len(c.File.Resource)+1)
	for k, v := range c.File.Resource {
		resource[k] = v
	}
	if c.ResourceType != "" {
		resource["type"] = c.ResourceType
	}

	return transport.Config{
		LogName:  logName,
		Labels:   labels,
		Resource: resource,
		Transform: transform.Config{
			MessageKey:     c.MessageKey,
			ErrorKey:       c.ErrorKey,
			MetadataKey:    c.MetadataKey,
			HTTPRequestKey: c.HTTPRequestKey,
			ServiceContext: c.ServiceContext(),
		},
		SeverityOverrides: overrides,
		Concurrency:       c.Concurrency,
		FlushInterval:     c.FlushInterval,
		FlushTimeout:      c.FlushTimeout,
	}, nil
}

// HECConfig returns the HEC client settings for the given resolved token
func (c *Config) HECConfig(token string) hec.Config {
	return hec.Config{
		Endpoints:       c.Endpoints,
		TLSSkipVerify:   c.TLSSkipVerify,
		Proxy:           c.Proxy,
		Token:           token,
		ChannelID:       c.ChannelID,
		Index:           c.Index,
		Source:          c.Source,
		SourceType:      c.Sourcetype,
		Host:            c.Host,
		Timeout:         c.Timeout,
		BalanceStrategy: c.Balance,
		StickyTTL:       c.StickyTTL,
		MaxEntrySize:    c.MaxEntrySize,
	}
}

// SetupLogging configures logrus for logrelay's own diagnostics. They go to
// stderr so they never mix with redirected entries on stdout.
func (c *Config) SetupLogging() {
	log.SetOutput(os.Stderr)
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithError(err).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
