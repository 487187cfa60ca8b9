package config

import (
	"github.com/spf13/pflag"
	null "gopkg.in/guregu/null.v3"
)

// FlagSet returns the flags that map onto Config fields.
func FlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.Int64("max-call-depth", DefaultMaxCallDepth, "maximum nested wasm call depth")
	flags.Int64("memory-limit-pages", 0, "cap on linear memory in 64KiB `pages` (0 = no cap)")
	flags.Bool("native", true, "allow tier-up to the native compiler")
	flags.Bool("force-native", false, "compile functions natively on first use")
	flags.Int64("max-interpreted-runs", DefaultMaxInterpretedRunCount, "interpreted runs before tier-up (-1 = never)")
	flags.String("log-level", DefaultLogLevel, "log `level` (debug, info, warn, error)")
	flags.String("log-format", DefaultLogFormat, "log `format` (console, json)")
	return flags
}

// FromFlags builds a Config holding only the flags the user set.
func FromFlags(flags *pflag.FlagSet) (Config, error) {
	var (
		conf Config
		err  error
	)
	if conf.MaxCallDepth, err = getNullInt64(flags, "max-call-depth"); err != nil {
		return conf, err
	}
	if conf.MemoryLimitPages, err = getNullInt64(flags, "memory-limit-pages"); err != nil {
		return conf, err
	}
	if conf.NativeEnabled, err = getNullBool(flags, "native"); err != nil {
		return conf, err
	}
	if conf.ForceNative, err = getNullBool(flags, "force-native"); err != nil {
		return conf, err
	}
	if conf.MaxInterpretedRunCount, err = getNullInt64(flags, "max-interpreted-runs"); err != nil {
		return conf, err
	}
	if conf.LogLevel, err = getNullString(flags, "log-level"); err != nil {
		return conf, err
	}
	if conf.LogFormat, err = getNullString(flags, "log-format"); err != nil {
		return conf, err
	}
	return conf, nil
}

func getNullBool(flags *pflag.FlagSet, key string) (null.Bool, error) {
	f := flags.Lookup(key)
	if f == nil {
		return null.Bool{}, nil
	}
	v, err := flags.GetBool(key)
	if err != nil {
		return null.Bool{}, err
	}
	return null.NewBool(v, f.Changed), nil
}

func getNullInt64(flags *pflag.FlagSet, key string) (null.Int, error) {
	f := flags.Lookup(key)
	if f == nil {
		return null.Int{}, nil
	}
	v, err := flags.GetInt64(key)
	if err != nil {
		return null.Int{}, err
	}
	return null.NewInt(v, f.Changed), nil
}

func getNullString(flags *pflag.FlagSet, key string) (null.String, error) {
	f := flags.Lookup(key)
	if f == nil {
		return null.String{}, nil
	}
	v, err := flags.GetString(key)
	if err != nil {
		return null.String{}, err
	}
	return null.NewString(v, f.Changed), nil
}
