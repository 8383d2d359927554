// Package config loads the daemon's configuration: the scheduling
// policy toggle, kill-task backoff bounds, and storage/listener
// paths. Config is a plain struct unmarshaled from YAML with
// gopkg.in/yaml.v3, with defaults applied for anything the file
// omits.
package config
