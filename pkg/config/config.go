package config

import (
	"errors"
	"io/fs"
	"log"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Options tweaks where Load looks. Zero value is the service convention.
type Options struct {
	// Paths searched for {service}.yaml, default ./config and .
	Paths []string
	// EnvFile is loaded into the process env before viper reads, default .env
	EnvFile string
	// EnvPrefix overrides the upper-cased service name (- becomes _).
	EnvPrefix string
	// Defaults are registered with viper before reading the file.
	Defaults map[string]interface{}
}

// Load reads config/{service}.yaml into out.
//
// Environment overrides use the service name as prefix, e.g. for
// gold-quotes: GOLD_QUOTES_HTTP_ADDR overrides http.addr.
func Load(service string, out interface{}, opts ...Options) (*viper.Viper, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.EnvFile == "" {
		o.EnvFile = ".env"
	}
	// .env 可选；不存在不算错误
	if err := godotenv.Load(o.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	paths := o.Paths
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	prefix := o.EnvPrefix
	if prefix == "" {
		prefix = strings.ReplaceAll(strings.ToUpper(service), "-", "_")
	}
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, def := range o.Defaults {
		v.SetDefault(k, def)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// 没有配置文件时允许只靠默认值 + 环境变量启动
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Printf("[%s] no config file found, using defaults and env", service)
	} else {
		log.Printf("[%s] config loaded from %s", service, v.ConfigFileUsed())
	}

	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	return v, nil
}

// Watch re-decodes the file on every change. newOut returns a fresh target
// so running code never observes a half-decoded struct.
func Watch(v *viper.Viper, service string, newOut func() interface{}, onChange func(interface{})) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("[%s] config file changed: %s", service, e.Name)
		out := newOut()
		if err := v.Unmarshal(out); err != nil {
			log.Printf("[%s] reload config error: %v", service, err)
			return
		}
		onChange(out)
		log.Printf("[%s] config reloaded OK", service)
	})
	v.WatchConfig()
}
