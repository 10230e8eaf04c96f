// Package confx holds the koanf plumbing shared by the client and the fake
// backend configs: an optional YAML/JSON file, then prefixed environment
// variables, decoded over a struct that already carries its defaults.
package confx

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Tag is the struct tag naming config keys.
const Tag = "koanf"

// Load overlays the file at path (skipped when empty) and the environment
// variables starting with prefix onto out, which must be a pointer to a
// struct. Variables that do not name a leaf field of out are ignored.
func Load(path, prefix string, environ func() []string, out any) error {
	k := koanf.New(".")

	if path != "" {
		// JSON is valid YAML, so one parser serves both
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return errors.Wrapf(err, "read config %s", path)
		}
	}

	known := Keys(reflect.TypeOf(out).Elem(), "")
	err := k.Load(env.Provider(".", env.Opt{
		Prefix:      prefix,
		EnvironFunc: environ,
		TransformFunc: func(name, value string) (string, any) {
			key, ok := known[strings.ToLower(strings.TrimPrefix(name, prefix))]
			if !ok {
				return "", nil
			}
			return key, value
		},
	}), nil)
	if err != nil {
		return errors.Wrap(err, "load environment")
	}

	err = k.UnmarshalWithConf("", out, koanf.UnmarshalConf{
		Tag: Tag,
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           out,
			TagName:          Tag,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	})
	if err != nil {
		return errors.Wrap(err, "decode config")
	}
	return nil
}

// Keys maps env-style names ("search_poll_interval") to koanf paths
// ("search.poll_interval") for every leaf field of t.
func Keys(t reflect.Type, prefix string) map[string]string {
	out := map[string]string{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get(Tag)
		if tag == "" || tag == "-" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			for k, v := range Keys(f.Type, path) {
				out[k] = v
			}
			continue
		}
		out[strings.ReplaceAll(path, ".", "_")] = path
	}
	return out
}
