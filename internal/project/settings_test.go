package project

import (
	"os"
	"path/filepath"
	"testing"

	"cachescope/internal/pyast"

	"github.com/google/go-cmp/cmp"
)

const fixtureSettings = `INSTALLED_APPS = [
    "django.contrib.admin",
    "django.contrib.auth",
    "blog",
    "shop",
]

MIDDLEWARE = [
    "django.middleware.cache.UpdateCacheMiddleware",
    "django.middleware.common.CommonMiddleware",
    "django.middleware.cache.FetchFromCacheMiddleware",
]

DATABASES = {
    "default": {
        "ENGINE": "django.db.backends.postgresql",
        "NAME": "blogdb",
    },
}

CACHES = {
    "default": {
        "BACKEND": "django.core.cache.backends.redis.RedisCache",
        "LOCATION": "redis://127.0.0.1:6379",
    },
}

CACHE_MIDDLEWARE_SECONDS = 600
`

func TestLoadSettings(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "config", "settings.py"), fixtureSettings)

	got, err := LoadSettings(root, pyast.NewParser(root))
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}

	want := Settings{
		Path:          "config/settings.py",
		InstalledApps: []string{"django.contrib.admin", "django.contrib.auth", "blog", "shop"},
		Middleware: []string{
			"django.middleware.cache.UpdateCacheMiddleware",
			"django.middleware.common.CommonMiddleware",
			"django.middleware.cache.FetchFromCacheMiddleware",
		},
		Databases:              map[string]string{"default": "django.db.backends.postgresql"},
		Caches:                 map[string]string{"default": "django.core.cache.backends.redis.RedisCache"},
		CacheMiddlewareSeconds: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Settings mismatch (-want +got):\n%s", diff)
	}

	if !got.HasSiteCache() {
		t.Error("Expected site cache with both middleware halves")
	}
	if !got.HasCacheBackend() {
		t.Error("Expected a cache backend")
	}
}

func TestLoadSettings_Missing(t *testing.T) {
	root := t.TempDir()

	got, err := LoadSettings(root, pyast.NewParser(root))
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.Path != "" {
		t.Errorf("Expected empty path, got %s", got.Path)
	}
	if got.HasSiteCache() || got.HasCacheBackend() {
		t.Error("Zero settings should report no caching")
	}
}

func TestLoadSettings_WalkFallback(t *testing.T) {
	root := t.TempDir()
	// Not in a candidate location; found by walking. The venv copy must
	// never win.
	mustWriteFile(t, filepath.Join(root, ".venv", "lib", "settings.py"), `INSTALLED_APPS = ["evil"]`)
	mustWriteFile(t, filepath.Join(root, "mysite", "settings.py"), `INSTALLED_APPS = ["blog"]`)

	got, err := LoadSettings(root, pyast.NewParser(root))
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.Path != "mysite/settings.py" {
		t.Errorf("Expected mysite/settings.py, got %q", got.Path)
	}
	if diff := cmp.Diff([]string{"blog"}, got.InstalledApps); diff != "" {
		t.Errorf("InstalledApps mismatch (-want +got):\n%s", diff)
	}
}

func TestSettings_HasSiteCache_RequiresBoth(t *testing.T) {
	s := Settings{Middleware: []string{"django.middleware.cache.UpdateCacheMiddleware"}}
	if s.HasSiteCache() {
		t.Error("One middleware half should not count as site cache")
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
