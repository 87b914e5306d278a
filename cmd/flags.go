package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags binds config keys to the named flags. A flag missing from fs is a
// programming error and panics.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		f := fs.Lookup(name)
		if f == nil {
			panic("cmd: unknown flag " + name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}

const configKeyPrefix = "config:"

// commandBindings extracts the config key to flag name map recorded by
// configKeys.
func commandBindings(cmd *cobra.Command) map[string]string {
	keys := make(map[string]string)
	for k, name := range cmd.Annotations {
		if key, ok := strings.CutPrefix(k, configKeyPrefix); ok {
			keys[key] = name
		}
	}
	return keys
}

// configKeys records which config key each of cmd's flags overrides. The
// bindings are applied only for the command that runs, since analyze and
// serve share keys.
func configKeys(cmd *cobra.Command, keys map[string]string) {
	if cmd.Annotations == nil {
		cmd.Annotations = make(map[string]string, len(keys))
	}
	for key, name := range keys {
		cmd.Annotations[configKeyPrefix+key] = name
	}
}

// addAnalyzeFlags registers the flags shared by analyze and serve.
func addAnalyzeFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.String("input-dir", "b4_threads", "directory holding thread archives")
	fs.Int("file-limit", 0, "analyze at most this many archives (0 = all)")
	fs.Int("parse-concurrency", 4, "archives split in parallel")
	fs.String("thread-key", "subject", "thread identity: subject or composite")
	fs.Int("top", 10, "entries per ranked table")
	configKeys(cmd, map[string]string{
		"analyze.input_dir":         "input-dir",
		"analyze.file_limit":        "file-limit",
		"analyze.parse_concurrency": "parse-concurrency",
		"analyze.thread_key":        "thread-key",
		"analyze.top_count":         "top",
	})
}
