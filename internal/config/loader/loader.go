// Package loader assembles the configuration source chain and loads it
package loader

import (
	"live-core/internal/config/schema"
	"live-core/internal/config/source"
	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
)

// Loader loads configuration from a chain of sources
type Loader struct {
	chain      source.Chain
	configFile string
}

// NewLoader creates an empty Loader
func NewLoader() *Loader {
	return &Loader{}
}

// AddSource adds a configuration source
func (l *Loader) AddSource(s source.Source) {
	l.chain = append(l.chain, s)
}

// ConfigFile is the YAML file picked by the builder, empty when none was found
func (l *Loader) ConfigFile() string {
	return l.configFile
}

// Load merges all sources, lower priorities first
func (l *Loader) Load() (*schema.Root, error) {
	if len(l.chain) == 0 {
		return nil, coreerrors.New(coreerrors.CodeInvalidParam, "no configuration sources registered")
	}
	cfg := &schema.Root{}
	if err := l.chain.Apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoaderBuilder wires the standard source chain
type LoaderBuilder struct {
	prefix     string
	configFile string
	appType    string
	appEnv     string
	dotEnv     bool
}

// NewLoaderBuilder creates a builder with .env loading enabled and no env prefix
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{dotEnv: true}
}

// WithPrefix sets the environment variable prefix
func (b *LoaderBuilder) WithPrefix(prefix string) *LoaderBuilder {
	b.prefix = prefix
	return b
}

// WithConfigFile sets an explicit configuration file
func (b *LoaderBuilder) WithConfigFile(path string) *LoaderBuilder {
	b.configFile = path
	return b
}

// WithAppType selects the default file names to search (server/client)
func (b *LoaderBuilder) WithAppType(appType string) *LoaderBuilder {
	b.appType = appType
	return b
}

// WithAppEnv selects the .env.<env> file
func (b *LoaderBuilder) WithAppEnv(env string) *LoaderBuilder {
	b.appEnv = env
	return b
}

// WithDotEnv enables or disables .env loading
func (b *LoaderBuilder) WithDotEnv(enabled bool) *LoaderBuilder {
	b.dotEnv = enabled
	return b
}

// Build creates the Loader: defaults, YAML, .env, environment
func (b *LoaderBuilder) Build() *Loader {
	l := NewLoader()
	l.AddSource(source.NewDefaultSource())

	l.configFile = source.FindConfigFile(b.configFile, b.appType)
	if l.configFile != "" {
		l.AddSource(source.NewYAMLSource(l.configFile))
		corelog.Debugf("Config: using config file %s", l.configFile)
	}
	if b.dotEnv {
		l.AddSource(source.NewDotEnvSource(source.FindDotEnvDirs(l.configFile), b.appEnv))
	}
	l.AddSource(source.NewEnvSource(b.prefix))
	return l
}

// Load builds the standard chain for appType and loads it, returning the
// resolved config file path as well.
func Load(configFile, appType string) (*schema.Root, string, error) {
	l := NewLoaderBuilder().WithConfigFile(configFile).WithAppType(appType).Build()
	cfg, err := l.Load()
	if err != nil {
		return nil, "", err
	}
	return cfg, l.ConfigFile(), nil
}
