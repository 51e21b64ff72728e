package options

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/robbyt/go-replkit/platform/script/loader"
)

// Profile keys. Globals starting with an underscore and functions are ignored, so a
// profile can use helpers.
const (
	keyGoBinary       = "go_binary"
	keyWorkDir        = "work_dir"
	keyTimeout        = "timeout"
	keyClasspath      = "classpath"
	keyPrelude        = "prelude"
	keyHTTPHeaders    = "http_headers"
	keyFetchCacheSize = "fetch_cache_size"
)

var profileKeys = []string{
	keyGoBinary, keyWorkDir, keyTimeout, keyClasspath, keyPrelude, keyHTTPHeaders, keyFetchCacheSize,
}

// FromProfile applies a Starlark session profile:
//
//	go_binary = "/usr/local/go/bin/go"
//	timeout = "30s"
//	classpath = ["./lib", "https://example.com/greet.zip"]
//	prelude = ['import "fmt"', 'type Point struct{ X, Y int }']
//	http_headers = {"X-Token": env("TOKEN")}
//
// The predeclared env(name, default="") reads the process environment.
func FromProfile(path string) Option {
	return func(c *Config) error {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProfileLoad, err)
		}
		return applyProfile(c, path, src)
	}
}

// FromProfileSource is FromProfile with the profile given inline.
func FromProfileSource(name string, src []byte) Option {
	return func(c *Config) error {
		return applyProfile(c, name, src)
	}
}

func applyProfile(c *Config, name string, src []byte) error {
	globals, err := execProfile(name, src)
	if err != nil {
		return err
	}

	for _, key := range globals.Keys() {
		if strings.HasPrefix(key, "_") || slices.Contains(profileKeys, key) {
			continue
		}
		if _, ok := globals[key].(starlark.Callable); ok {
			continue
		}
		return fmt.Errorf("%w: unknown key %q", ErrProfileKey, key)
	}

	if v, ok := globals[keyGoBinary]; ok {
		s, err := profileString(keyGoBinary, v)
		if err != nil {
			return err
		}
		c.goBinary = s
	}
	if v, ok := globals[keyWorkDir]; ok {
		s, err := profileString(keyWorkDir, v)
		if err != nil {
			return err
		}
		c.workDir = s
	}
	if v, ok := globals[keyTimeout]; ok {
		d, err := profileDuration(v)
		if err != nil {
			return err
		}
		c.timeout = d
	}
	if v, ok := globals[keyClasspath]; ok {
		entries, err := profileStrings(keyClasspath, v)
		if err != nil {
			return err
		}
		c.classpath = append(c.classpath, entries...)
	}
	if v, ok := globals[keyPrelude]; ok {
		snippets, err := profileStrings(keyPrelude, v)
		if err != nil {
			return err
		}
		c.prelude = append(c.prelude, snippets...)
	}
	if v, ok := globals[keyHTTPHeaders]; ok {
		headers, err := profileHeaders(v)
		if err != nil {
			return err
		}
		if c.httpOptions == nil {
			c.httpOptions = loader.DefaultHTTPOptions()
		}
		if err := c.httpOptions.Apply(loader.WithHeaders(headers)); err != nil {
			return fmt.Errorf("%w: %w", ErrProfileKey, err)
		}
	}
	if v, ok := globals[keyFetchCacheSize]; ok {
		n, err := starlark.AsInt32(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProfileKey, keyFetchCacheSize, err)
		}
		c.fetchCacheSize = n
	}
	return nil
}

func execProfile(name string, src []byte) (starlark.StringDict, error) {
	predeclared := starlark.StringDict{
		"env": starlark.NewBuiltin("env", envBuiltin),
	}

	opts := &syntax.FileOptions{}
	f, err := opts.Parse(name, src, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileLoad, err)
	}
	prog, err := starlark.FileProgram(f, predeclared.Has)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileLoad, err)
	}

	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(os.Stderr, msg)
		},
	}
	globals, err := prog.Init(thread, predeclared)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileLoad, err)
	}
	globals.Freeze()
	return globals, nil
}

func envBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, def string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv(name); ok {
		return starlark.String(v), nil
	}
	return starlark.String(def), nil
}

func profileString(key string, v starlark.Value) (string, error) {
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %s", ErrProfileKey, key, v.Type())
	}
	return s, nil
}

func profileStrings(key string, v starlark.Value) ([]string, error) {
	if s, ok := starlark.AsString(v); ok {
		return []string{s}, nil
	}
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list of strings, got %s", ErrProfileKey, key, v.Type())
	}
	var out []string
	it := iterable.Iterate()
	defer it.Done()
	var item starlark.Value
	for it.Next(&item) {
		s, ok := starlark.AsString(item)
		if !ok {
			return nil, fmt.Errorf("%w: %s entries must be strings, got %s", ErrProfileKey, key, item.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

// profileDuration accepts a Go duration string or a number of seconds.
func profileDuration(v starlark.Value) (time.Duration, error) {
	switch x := v.(type) {
	case starlark.String:
		d, err := time.ParseDuration(string(x))
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrProfileKey, keyTimeout, err)
		}
		return d, nil
	case starlark.Int:
		n, ok := x.Int64()
		if !ok {
			return 0, fmt.Errorf("%w: %s out of range", ErrProfileKey, keyTimeout)
		}
		return time.Duration(n) * time.Second, nil
	case starlark.Float:
		return time.Duration(float64(x) * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a duration string or seconds, got %s", ErrProfileKey, keyTimeout, v.Type())
	}
}

func profileHeaders(v starlark.Value) (map[string]string, error) {
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a dict, got %s", ErrProfileKey, keyHTTPHeaders, v.Type())
	}
	headers := make(map[string]string, dict.Len())
	for _, item := range dict.Items() {
		k, kok := starlark.AsString(item[0])
		val, vok := starlark.AsString(item[1])
		if !kok || !vok {
			return nil, fmt.Errorf("%w: %s keys and values must be strings", ErrProfileKey, keyHTTPHeaders)
		}
		headers[k] = val
	}
	return headers, nil
}
