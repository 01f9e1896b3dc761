// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cfg binds MountConfig and the runtime tunables belonging to the
// dispatcher, write queue, and shutdown coordinator to a single config
// source, following gcsfuse/cfg's config-struct-plus-viper pattern. There
// is deliberately no CLI surface (no cobra command) here — only the config
// loading layer is in scope; wiring a mount driver's command-line flags is
// a Non-goal.
package cfg

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object: mount options plus the runtime
// tunables for the dispatcher, write queue, and shutdown coordinator.
type Config struct {
	Mount      MountOptions
	Dispatcher DispatcherOptions
	WriteQueue WriteQueueOptions
	Shutdown   ShutdownOptions
}

// MountOptions mirrors the friendlier subset of fuse.MountConfig that's
// reasonable to drive from a config file rather than code.
type MountOptions struct {
	FSName     string `mapstructure:"fs_name"`
	ReadOnly   bool   `mapstructure:"read_only"`
	AllowOther bool   `mapstructure:"allow_other"`
	DebugLog   bool   `mapstructure:"debug_log"`
}

// DispatcherOptions configures the request dispatcher (C3).
type DispatcherOptions struct {
	MaxQueueSize     int  `mapstructure:"max_queue_size"`
	WorkerThreads    int  `mapstructure:"worker_threads"`
	PriorityOrdering bool `mapstructure:"priority_ordering"`
}

// WriteQueueOptions configures the per-fd write queue (C4).
type WriteQueueOptions struct {
	DefaultMaxQueueSize int `mapstructure:"default_max_queue_size"`
	PerFDMaxQueueSize   int `mapstructure:"per_fd_max_queue_size"`
}

// ShutdownOptions configures the shutdown coordinator's phase timeouts (C5).
type ShutdownOptions struct {
	DrainingTimeout   time.Duration `mapstructure:"draining_timeout"`
	UnmountingTimeout time.Duration `mapstructure:"unmounting_timeout"`
	TotalTimeout      time.Duration `mapstructure:"total_timeout"`
}

func defaults() Config {
	return Config{
		Dispatcher: DispatcherOptions{
			MaxQueueSize:     0,
			WorkerThreads:    8,
			PriorityOrdering: true,
		},
		WriteQueue: WriteQueueOptions{
			DefaultMaxQueueSize: 256,
			PerFDMaxQueueSize:   16,
		},
		Shutdown: ShutdownOptions{
			DrainingTimeout:   5 * time.Second,
			UnmountingTimeout: 8 * time.Second,
			TotalTimeout:      15 * time.Second,
		},
	}
}

// Load reads configuration from path (if non-empty) and from environment
// variables prefixed FUSE_, layering them over built-in defaults.
// Environment variables win over the file; the file wins over defaults.
func Load(path string) (Config, error) {
	v := viper.New()

	d := defaults()
	v.SetDefault("dispatcher.max_queue_size", d.Dispatcher.MaxQueueSize)
	v.SetDefault("dispatcher.worker_threads", d.Dispatcher.WorkerThreads)
	v.SetDefault("dispatcher.priority_ordering", d.Dispatcher.PriorityOrdering)
	v.SetDefault("write_queue.default_max_queue_size", d.WriteQueue.DefaultMaxQueueSize)
	v.SetDefault("write_queue.per_fd_max_queue_size", d.WriteQueue.PerFDMaxQueueSize)
	v.SetDefault("shutdown.draining_timeout", d.Shutdown.DrainingTimeout)
	v.SetDefault("shutdown.unmounting_timeout", d.Shutdown.UnmountingTimeout)
	v.SetDefault("shutdown.total_timeout", d.Shutdown.TotalTimeout)

	v.SetEnvPrefix("FUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("cfg: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.UnmarshalKey("mount", &cfg.Mount); err != nil {
		return Config{}, fmt.Errorf("cfg: unmarshalling mount: %w", err)
	}
	if err := v.UnmarshalKey("dispatcher", &cfg.Dispatcher); err != nil {
		return Config{}, fmt.Errorf("cfg: unmarshalling dispatcher: %w", err)
	}
	if err := v.UnmarshalKey("write_queue", &cfg.WriteQueue); err != nil {
		return Config{}, fmt.Errorf("cfg: unmarshalling write_queue: %w", err)
	}
	if err := v.UnmarshalKey("shutdown", &cfg.Shutdown); err != nil {
		return Config{}, fmt.Errorf("cfg: unmarshalling shutdown: %w", err)
	}

	return cfg, nil
}
