// Package npmrc reads npm configuration files to resolve scope-specific
// registries and registry credentials.
package npmrc

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/git-pkgs/updatecheck/client"
)

// Credential is an Authorization scheme and value for a registry.
type Credential struct {
	Type  string
	Token string
}

// Header returns the Authorization header value.
func (c Credential) Header() string {
	return c.Type + " " + c.Token
}

// Options locates the configuration files. Empty fields use npm's defaults.
type Options struct {
	Cwd          string
	UserConfig   string
	GlobalConfig string
	Getenv       func(string) string
}

// Config is a merged view of the global, user and project .npmrc files.
type Config struct {
	values map[string]string
	getenv func(string) string
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the configuration files. Missing files are ignored.
func Load(opts Options) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	var sources []interface{}
	for _, p := range sourcePaths(opts, getenv) {
		sources = append(sources, p)
	}

	values := make(map[string]string)
	if len(sources) > 0 {
		f, err := ini.LoadSources(ini.LoadOptions{
			Loose:               true,
			KeyValueDelimiters:  "=",
			IgnoreInlineComment: true,
			AllowBooleanKeys:    true,
		}, sources[0], sources[1:]...)
		if err != nil {
			return nil, fmt.Errorf("parsing npmrc: %w", err)
		}
		for _, key := range f.Section(ini.DefaultSection).Keys() {
			values[key.Name()] = key.String()
		}
	}

	if reg := firstEnv(getenv, "NPM_CONFIG_REGISTRY", "npm_config_registry"); reg != "" {
		values["registry"] = reg
	}

	return &Config{values: values, getenv: getenv}, nil
}

// FromMap builds a Config from raw key/value pairs.
func FromMap(values map[string]string, getenv func(string) string) *Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Config{values: copied, getenv: getenv}
}

// sourcePaths returns files lowest precedence first.
func sourcePaths(opts Options, getenv func(string) string) []string {
	var paths []string

	global := opts.GlobalConfig
	if global == "" {
		global = firstEnv(getenv, "NPM_CONFIG_GLOBALCONFIG", "npm_config_globalconfig")
	}
	if global == "" {
		if prefix := firstEnv(getenv, "PREFIX"); prefix != "" {
			global = filepath.Join(prefix, "etc", "npmrc")
		}
	}
	if global != "" {
		paths = append(paths, global)
	}

	user := opts.UserConfig
	if user == "" {
		user = firstEnv(getenv, "NPM_CONFIG_USERCONFIG", "npm_config_userconfig")
	}
	if user == "" {
		if home, err := os.UserHomeDir(); err == nil {
			user = filepath.Join(home, ".npmrc")
		}
	}
	if user != "" {
		paths = append(paths, user)
	}

	cwd := opts.Cwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	if cwd != "" {
		paths = append(paths, filepath.Join(cwd, ".npmrc"))
	}
	return paths
}

func firstEnv(getenv func(string) string, names ...string) string {
	for _, n := range names {
		if v := getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Get returns a value with ${VAR} references expanded.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.values[key]
	if !ok {
		return "", false
	}
	return envRef.ReplaceAllStringFunc(v, func(ref string) string {
		return c.getenv(ref[2 : len(ref)-1])
	}), true
}

// RegistryURL returns the registry for scope ("@scope" or "" for unscoped
// packages). The result always ends with "/".
func (c *Config) RegistryURL(scope string) string {
	if scope != "" && !strings.HasPrefix(scope, "@") {
		scope = "@" + scope
	}
	reg := ""
	if scope != "" {
		reg, _ = c.Get(scope + ":registry")
	}
	if reg == "" {
		reg, _ = c.Get("registry")
	}
	if reg == "" {
		reg = client.DefaultRegistryURL
	}
	if !strings.HasSuffix(reg, "/") {
		reg += "/"
	}
	return reg
}

// Credentials returns the credential configured for registryURL. Lookups
// walk up the URL path so a token for "//host/" also covers "//host/a/b/".
func (c *Config) Credentials(registryURL string) (*Credential, bool) {
	u, err := url.Parse(registryURL)
	if err != nil || u.Host == "" {
		return nil, false
	}

	dir := u.Path
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	for {
		prefix := "//" + u.Host + dir
		if cred, ok := c.credentialsFor(prefix); ok {
			return cred, true
		}
		if cred, ok := c.credentialsFor(strings.TrimSuffix(prefix, "/")); ok {
			return cred, true
		}
		if dir == "/" {
			return nil, false
		}
		dir = path.Dir(strings.TrimSuffix(dir, "/"))
		if !strings.HasSuffix(dir, "/") {
			dir += "/"
		}
	}
}

func (c *Config) credentialsFor(prefix string) (*Credential, bool) {
	if token, ok := c.Get(prefix + ":_authToken"); ok && token != "" {
		return &Credential{Type: "Bearer", Token: token}, true
	}
	if auth, ok := c.Get(prefix + ":_auth"); ok && auth != "" {
		return &Credential{Type: "Basic", Token: auth}, true
	}
	user, _ := c.Get(prefix + ":username")
	pass, _ := c.Get(prefix + ":_password")
	if user != "" && pass != "" {
		decoded, err := base64.StdEncoding.DecodeString(pass)
		if err != nil {
			return nil, false
		}
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + string(decoded)))
		return &Credential{Type: "Basic", Token: token}, true
	}
	return nil, false
}
