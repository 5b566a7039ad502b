package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	BaseFile   = "publisher.yaml"
	SecureFile = "secure.yaml"
	SiteDir    = "site"

	// DefaultSiteName names the publisher built from the base file alone.
	DefaultSiteName = "default"
)

// Secure holds credentials kept out of the regular config files.
type Secure struct {
	Passwords map[string]string `yaml:"passwords"`
}

// Password returns the secure password for username, if there is one.
func (s Secure) Password(username string) (string, bool) {
	if username == "" {
		return "", false
	}
	p, ok := s.Passwords[username]
	return p, ok && p != ""
}

// Load reads every site under dir. A site file that cannot be parsed is
// logged and skipped; if none load, the base file alone yields one site.
// Every returned site has been validated.
func Load(dir string, log *zap.SugaredLogger) ([]Site, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}

	base := defaultSite()
	if err := readYAML(filepath.Join(dir, BaseFile), &base); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		log.Infow("no base config file, using defaults", "path", filepath.Join(dir, BaseFile))
	}

	var secure Secure
	if err := readYAML(filepath.Join(dir, SecureFile), &secure); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	paths, err := filepath.Glob(filepath.Join(dir, SiteDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing site files: %w", err)
	}
	sort.Strings(paths)

	var sites []Site
	for _, path := range paths {
		site := base
		if err := readYAML(path, &site); err != nil {
			log.Errorw("skipping site config", "path", path, "error", err)
			continue
		}
		site.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		sites = append(sites, site)
	}
	if len(sites) == 0 {
		log.Warnw("no site config loaded, using base config only", "dir", dir)
		base.Name = DefaultSiteName
		sites = append(sites, base)
	}

	var errs []error
	for i := range sites {
		applyEnvOverrides(&sites[i])
		applySecure(&sites[i], secure)
		sites[i].normalize()
		if err := sites[i].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return sites, nil
}

// readYAML decodes path into out, leaving fields absent from the file as
// they were.
func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applySecure(s *Site, secure Secure) {
	if p, ok := secure.Password(s.AMQP.Username); ok {
		s.AMQP.Password = p
	}
	if p, ok := secure.Password(s.Kafka.Username); ok {
		s.Kafka.Password = p
	}
	if p, ok := secure.Password(s.MQTT.Username); ok {
		s.MQTT.Password = p
	}
	if p, ok := secure.Password(s.NATS.Username); ok {
		s.NATS.Password = p
	}
}

// applyEnvOverrides applies environment variables to every site.
func applyEnvOverrides(s *Site) {
	if v := os.Getenv("PUBLISHER_BROKER_TYPE"); v != "" {
		s.Broker.Type = v
	}
	if v := os.Getenv("PUBLISHER_AMQP_URI"); v != "" {
		s.AMQP.URI = v
	}
	if v := os.Getenv("PUBLISHER_AMQP_USERNAME"); v != "" {
		s.AMQP.Username = v
	}
	if v := os.Getenv("PUBLISHER_AMQP_PASSWORD"); v != "" {
		s.AMQP.Password = v
	}
	if v := os.Getenv("PUBLISHER_KAFKA_BOOTSTRAP_SERVERS"); v != "" {
		s.Kafka.BootstrapServers = v
	}
	if v := os.Getenv("PUBLISHER_MQTT_BROKER"); v != "" {
		s.MQTT.Broker = v
	}
	if v := os.Getenv("PUBLISHER_NATS_URL"); v != "" {
		s.NATS.URL = v
	}
}
