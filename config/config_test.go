package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/mallcrawler/pkg/errors"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "output", config.OutputDir)
	assert.Equal(t, filepath.Join("output", "errors.log"), config.ErrorLogFile)
	assert.Equal(t, 15*time.Second, config.RequestTimeout)
	assert.Equal(t, 1500*time.Millisecond, config.RequestDelay)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, "", config.MemcacheAddr)
	assert.False(t, config.PublishEnabled)
	assert.Equal(t, 1, config.RedisStreamCount)
	assert.NoError(t, config.Validate())

	// Test with environment variables
	t.Setenv("OUTPUT_DIR", "/tmp/malls")
	t.Setenv("REQUEST_DELAY_MS", "250")
	t.Setenv("MAX_RETRIES", "not-a-number")
	t.Setenv("MEMCACHE_ADDR", "memcache.example.com:11211")
	t.Setenv("PUBLISH_ENABLED", "true")
	t.Setenv("CRAWL_INTERVAL_SECONDS", "30")
	t.Setenv("MALL_ENVIRONMENT", "production")

	config = LoadConfig()
	assert.Equal(t, "/tmp/malls", config.OutputDir)
	assert.Equal(t, "/tmp/malls/errors.log", config.ErrorLogFile)
	assert.Equal(t, 250*time.Millisecond, config.RequestDelay)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, "memcache.example.com:11211", config.MemcacheAddr)
	assert.True(t, config.PublishEnabled)
	assert.Equal(t, 30*time.Second, config.CrawlInterval)
	assert.True(t, config.IsProduction())
}

func TestValidate(t *testing.T) {
	config := LoadConfig()
	config.MaxConcurrentMalls = 0
	err := config.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.TypeOf(err))

	config = LoadConfig()
	config.PublishEnabled = true
	config.RedisStream = ""
	assert.Error(t, config.Validate())
}

func TestLoadSitesDefaults(t *testing.T) {
	cfg := LoadConfig()
	sites, err := LoadSites(filepath.Join(t.TempDir(), "missing.json5"), cfg)
	require.NoError(t, err)
	assert.Len(t, sites, len(DefaultSites()))

	for _, site := range sites {
		assert.Equal(t, "page", site.PageParam)
		assert.Equal(t, cfg.MaxPages, site.MaxPages)
		assert.Equal(t, cfg.RequestDelay, site.Delay())
		assert.Equal(t, cfg.BlockTime, site.BlockTime())
	}
}

func TestLoadSitesWithLocalOverride(t *testing.T) {
	dir := t.TempDir()
	base := `{
		// regional malls
		sites: [
			{key: "yeoju", name: "여주몰", url: "https://yeoju.example", region: "경기도", maxPages: 2},
			{key: "gmall", name: "경북몰", url: "https://gmall.example", selectors: {productList: ["ul.prdList > li"]}},
		],
	}`
	local := `{
		sites: [
			{key: "yeoju", url: "https://여주몰.kr", encoding: "EUC-KR"},
			{key: "extra", name: "추가몰", url: "http://extra.example", disabled: true},
		],
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sites.json5"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sites.local.json5"), []byte(local), 0o644))

	sites, err := LoadSites(filepath.Join(dir, "sites.json5"), LoadConfig())
	require.NoError(t, err)
	require.Len(t, sites, 3)

	assert.Equal(t, "여주몰", sites[0].Name)
	assert.Equal(t, "https://여주몰.kr", sites[0].URL)
	assert.Equal(t, "euc-kr", sites[0].Encoding)
	assert.Equal(t, 2, sites[0].MaxPages)
	assert.Equal(t, []string{"ul.prdList > li"}, sites[1].Selectors.ProductList)

	enabled := FilterSites(sites)
	assert.Len(t, enabled, 2)

	picked := FilterSites(sites, "extra")
	require.Len(t, picked, 1)
	assert.Equal(t, "extra", picked[0].Key)
}

func TestLoadSitesLocalOverrideReEnablesSite(t *testing.T) {
	dir := t.TempDir()
	base := `{
		sites: [
			{key: "yeoju", name: "여주몰", url: "https://yeoju.example", disabled: true},
			{key: "gmall", name: "경북몰", url: "https://gmall.example", disabled: true, selectors: {productList: ["ul.prdList > li"]}},
		],
	}`
	local := `{
		sites: [
			{key: "yeoju", disabled: false},
			{key: "gmall", region: "경상북도", selectors: {productList: []}},
		],
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sites.json5"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sites.local.json5"), []byte(local), 0o644))

	sites, err := LoadSites(filepath.Join(dir, "sites.json5"), LoadConfig())
	require.NoError(t, err)
	require.Len(t, sites, 2)

	assert.False(t, sites[0].Disabled)
	assert.True(t, sites[1].Disabled)
	assert.Equal(t, "경상북도", sites[1].Region)
	// an empty list keeps the base selectors
	assert.Equal(t, []string{"ul.prdList > li"}, sites[1].Selectors.ProductList)

	enabled := FilterSites(sites)
	require.Len(t, enabled, 1)
	assert.Equal(t, "yeoju", enabled[0].Key)
}

func TestLoadSitesRejectsBadSelector(t *testing.T) {
	dir := t.TempDir()
	content := `{sites: [{key: "bad", name: "Bad", url: "https://bad.example", selectors: {title: ["div[["]}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sites.json5"), []byte(content), 0o644))

	_, err := LoadSites(filepath.Join(dir, "sites.json5"), LoadConfig())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeValidation, errors.TypeOf(err))
	assert.Contains(t, err.Error(), "invalid selector")
}

func TestSiteValidate(t *testing.T) {
	testCases := []struct {
		name  string
		site  SiteConfig
		valid bool
	}{
		{"ok", SiteConfig{Key: "a", Name: "A", URL: "https://a.example"}, true},
		{"missing key", SiteConfig{Name: "A", URL: "https://a.example"}, false},
		{"relative url", SiteConfig{Key: "a", Name: "A", URL: "/shop"}, false},
		{"ftp url", SiteConfig{Key: "a", Name: "A", URL: "ftp://a.example"}, false},
		{"unknown encoding", SiteConfig{Key: "a", Name: "A", URL: "https://a.example", Encoding: "shift_jis"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.site.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
