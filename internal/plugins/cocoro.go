package plugins

import (
	"log/slog"

	"github.com/joshp123/gohome-cocoro/internal/config"
	"github.com/joshp123/gohome-cocoro/internal/core"
	"github.com/joshp123/gohome-cocoro/plugins/cocoro"
)

func init() {
	Register(func(cfg *config.Config, logger *slog.Logger) (core.Plugin, bool) {
		plugin, ok := cocoro.NewPlugin(cfg, logger.With("plugin", "cocoro"))
		if !ok {
			return nil, false
		}
		return plugin, true
	})
}
