package simulation

import (
	"os"
	"strings"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/plugin"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/sinusoid"
)

// DefaultCategoryName is the key the plugin category is stored under.
const DefaultCategoryName = "sinusoid"

// CategoryFromEnv returns the plugin's default category, overlaid with the
// YAML file named by SINUSOID_CATEGORY_FILE when set.
func CategoryFromEnv() (plugin.Category, error) {
	return CategoryFromFile(os.Getenv(categoryFileEnvKey))
}

// CategoryFromFile overlays path onto the default category. An empty path
// yields the defaults.
func CategoryFromFile(path string) (plugin.Category, error) {
	base := sinusoid.DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	return plugin.LoadCategory(path, base)
}
