package cli

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/idelchi/dirsize/internal/dirsize"
)

const (
	configBaseName = "dirsize"
	configFileName = configBaseName + ".yaml"

	envPrefix = "DIRSIZE"

	topKey              = "top"
	outputKey           = "output"
	excludeKey          = "exclude"
	workersKey          = "workers"
	engineKey           = "engine"
	dirsKey             = "dirs"
	debugKey            = "debug"
	progressIntervalKey = "progress_interval"

	logFileKey       = "log.file"
	logLevelKey      = "log.level"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogLevel      = "warn"
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

// newConfig returns a viper instance with defaults and environment binding.
// Flags are bound on top of it by the root command.
func newConfig() *viper.Viper {
	v := viper.New()

	v.SetConfigName(configBaseName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(topKey, dirsize.DefaultTopN)
	v.SetDefault(outputKey, "table")
	v.SetDefault(excludeKey, []string{})
	v.SetDefault(workersKey, 0)
	v.SetDefault(engineKey, string(dirsize.EngineAuto))
	v.SetDefault(dirsKey, false)
	v.SetDefault(debugKey, false)
	v.SetDefault(progressIntervalKey, dirsize.DefaultProgressInterval)

	v.SetDefault(logFileKey, "")
	v.SetDefault(logLevelKey, defaultLogLevel)
	v.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	v.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	v.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	v.SetDefault(logCompressKey, defaultLogCompress)

	return v
}

// readConfig loads the config file. An explicit path must exist; the default
// dirsize.yaml in the working directory is optional.
func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}

		return err
	}

	return nil
}

// options builds scan options from the merged flag, env and file configuration.
func options(v *viper.Viper) dirsize.Options {
	return dirsize.Options{
		Excludes:         v.GetStringSlice(excludeKey),
		Workers:          v.GetInt(workersKey),
		Engine:           dirsize.Engine(strings.ToLower(v.GetString(engineKey))),
		TopN:             v.GetInt(topKey),
		DirsOnly:         v.GetBool(dirsKey),
		ProgressInterval: durationOrDefault(v.GetDuration(progressIntervalKey), dirsize.DefaultProgressInterval),
		Debug:            v.GetBool(debugKey),
		Output:           strings.ToLower(v.GetString(outputKey)),
	}
}

func durationOrDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}

	return d
}

// newLogger builds the logger handed to the scanner. Without a log file,
// output goes to stderr in debug mode and is discarded otherwise.
func newLogger(v *viper.Viper, stderr io.Writer, version string) (*logrus.Entry, func() error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(v.GetString(logLevelKey))
	if err != nil {
		level = logrus.WarnLevel
	}

	debug := v.GetBool(debugKey)
	if debug {
		level = logrus.DebugLevel
	}

	log.SetLevel(level)

	closeLog := func() error { return nil }

	switch file := v.GetString(logFileKey); {
	case file != "":
		writer := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    v.GetInt(logMaxSizeKey),
			MaxBackups: v.GetInt(logMaxBackupsKey),
			MaxAge:     v.GetInt(logMaxAgeKey),
			Compress:   v.GetBool(logCompressKey),
		}

		log.SetOutput(writer)
		log.Formatter = &logrus.JSONFormatter{}
		closeLog = writer.Close
	case debug:
		log.SetOutput(stderr)
	default:
		log.SetOutput(io.Discard)
	}

	return log.WithFields(logrus.Fields{
		"debug":   debug,
		"version": version,
	}), closeLog
}
