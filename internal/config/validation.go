package config

import (
	"errors"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

var supportedLogFormats = map[string]struct{}{
	"text": {},
	"json": {},
}

// Validate rejects settings the checker cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(c.DistTag) == "" {
		return newFieldError(KeyDistTag, "must not be empty")
	}
	if strings.ContainsAny(c.DistTag, `/\`) {
		return newFieldError(KeyDistTag, "must not contain path separators")
	}
	if c.CheckInterval < 0 {
		return newFieldError(KeyCheckInterval, "must not be negative")
	}
	if c.Timeout < 0 {
		return newFieldError(KeyTimeout, "must not be negative")
	}
	if strings.TrimSpace(c.MetaDir) == "" {
		return newFieldError(KeyMetaDir, "must not be empty")
	}
	if c.Concurrency < 1 {
		return newFieldError(KeyConcurrency, "must be at least 1")
	}
	if c.Registry != "" {
		u, err := url.Parse(c.Registry)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return newFieldError(KeyRegistry, "must be an absolute URL")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return newFieldError(KeyRegistry, "scheme must be http or https")
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return newFieldError(KeyLogLevel, err.Error())
	}
	if _, ok := supportedLogFormats[strings.ToLower(c.Log.Format)]; !ok {
		return newFieldError(KeyLogFormat, "must be text or json")
	}
	if c.Log.MaxSize < 0 {
		return newFieldError(KeyLogMaxSize, "must not be negative")
	}
	if c.Log.MaxBackups < 0 {
		return newFieldError(KeyLogMaxBackups, "must not be negative")
	}
	return nil
}
