package config

// Config holds folio configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Defra    DefraConfig    `mapstructure:"defra" yaml:"defra" json:"defra"`
	Annotate AnnotateConfig `mapstructure:"annotate" yaml:"annotate" json:"annotate"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host" json:"host"`
	Port string `mapstructure:"port" yaml:"port" json:"port"`
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// ContainerName is the Docker container name (default: folio-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name" json:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image" json:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port" json:"port"`
}

// AnnotateConfig sizes the index cache and the re-annotation worker pool.
type AnnotateConfig struct {
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"` // Cached book indexes
	Workers   int `mapstructure:"workers" yaml:"workers" json:"workers"`          // 0 means runtime.NumCPU()
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"` // Pending annotation tasks
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`    // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format" json:"format"` // text or json
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Defra: DefraConfig{
			ContainerName: "folio-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
		Annotate: AnnotateConfig{
			CacheSize: 128,
			Workers:   0,
			QueueSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefraURL returns the DefraDB HTTP address for the configured port.
func (c *Config) DefraURL() string {
	port := c.Defra.Port
	if port == "" {
		port = "9181"
	}
	return "http://localhost:" + port
}
