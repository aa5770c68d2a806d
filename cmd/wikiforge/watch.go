// Copyright 2025 Kadir Pekel
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

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kadirpekel/wikiforge/pkg/config"
	"github.com/kadirpekel/wikiforge/pkg/logger"
)

// watchConfig starts a config.Watcher on path and applies the one field
// this process can safely hot-swap without restarting its components: the
// log level. Everything else in the §6.4 "mutable subset" (intervals,
// TTLs) is read once at compose time by the Scheduler/Engine/Lock
// Manager it configures, so a change is logged for the operator rather
// than silently partially applied — a full hot-restart of those
// components is out of scope for this demo entrypoint.
func watchConfig(ctx context.Context, path string, initial *config.Config, log *slog.Logger) {
	w, err := config.NewWatcher(path, log)
	if err != nil {
		log.Warn("wikiforge: config watch disabled", "error", err)
		return
	}

	ch := w.Watch(ctx, initial)
	go func() {
		defer w.Close()
		for reload := range ch {
			if reload.Config.Observability.LogLevel != reload.Previous.Observability.LogLevel {
				if level, err := logger.ParseLevel(reload.Config.Observability.LogLevel); err == nil {
					logger.Init(level, os.Stderr, reload.Config.Observability.LogFormat)
					log.Info("wikiforge: applied log level from reloaded config", "level", reload.Config.Observability.LogLevel)
				}
			}
			log.Info("wikiforge: config reloaded; scheduler intervals and lock/store topology require a restart to take effect")
		}
	}()
}
