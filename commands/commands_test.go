package commands

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/mallcrawler/internal/crawler"
	"sjsage522/mallcrawler/services/storage"
)

const testMallHome = `<html><head><title>테스트몰</title></head><body>
<ul class="goods_list">
	<li><a href="/product/11"><span class="goods_name">표고버섯 1kg</span></a><span class="sale_price">25,000원</span></li>
	<li><a href="/product/12"><span class="goods_name">들기름 350ml</span></a><span class="sale_price">16,000원</span></li>
</ul></body></html>`

func resetFlags(t *testing.T) {
	t.Cleanup(func() {
		sitesFile, outputDir, concurrency, detectEncoding = "", "", 0, ""
	})
}

func setupTestEnv(t *testing.T) string {
	resetFlags(t)
	dir := t.TempDir()
	t.Setenv("REQUEST_DELAY_MS", "1")
	t.Setenv("MAX_RETRIES", "0")
	t.Setenv("RETRY_BASE_DELAY_MS", "1")
	t.Setenv("MEMCACHE_ADDR", "")
	t.Setenv("PUBLISH_ENABLED", "false")
	t.Setenv("ERROR_LOG_FILE", "")
	return dir
}

func writeSitesFile(t *testing.T, dir, content string) string {
	path := filepath.Join(dir, "sites.json5")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestScrapeCommand(t *testing.T) {
	dir := setupTestEnv(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, testMallHome)
	}))
	defer server.Close()

	sites := writeSitesFile(t, dir, fmt.Sprintf(`{
		// one local test mall
		sites: [
			{key: "testmall", name: "테스트몰", region: "경기", url: %q},
			{key: "offline", name: "꺼진몰", url: "https://offline.invalid", disabled: true},
		],
	}`, server.URL))
	out := filepath.Join(dir, "out")

	require.NoError(t, execute("scrape", "--sites", sites, "--output", out))

	snapshot, err := storage.ReadSnapshot(filepath.Join(out, "testmall.json"))
	require.NoError(t, err)
	assert.Equal(t, crawler.PlatformUnknown, snapshot.Platform)
	require.Len(t, snapshot.Products, 2)
	assert.Equal(t, "표고버섯 1kg", snapshot.Products[0].Name)
	assert.Equal(t, 25000, snapshot.Products[0].Price)

	for _, name := range []string{"testmall-summary.json", storage.AllProductsFile} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(out, "offline.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestScrapeCommandReportsFailures(t *testing.T) {
	dir := setupTestEnv(t)
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	sites := writeSitesFile(t, dir, fmt.Sprintf(`{sites: [{key: "gone", name: "없는몰", url: %q}]}`, server.URL))
	out := filepath.Join(dir, "out")

	err := execute("scrape", "--sites", sites, "--output", out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 malls failed")

	_, err = os.Stat(filepath.Join(out, "gone-error.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "errors.log"))
	assert.NoError(t, err)
}

func TestScrapeCommandUnknownSite(t *testing.T) {
	dir := setupTestEnv(t)
	sites := writeSitesFile(t, dir, `{sites: [{key: "a", name: "A", url: "https://a.kr"}]}`)

	err := execute("scrape", "nope", "--sites", sites, "--output", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown site "nope"`)
}

func TestSitesCommand(t *testing.T) {
	dir := setupTestEnv(t)
	sites := writeSitesFile(t, dir, `{sites: [{key: "a", name: "A", url: "https://a.kr", platform: "godo"}]}`)
	assert.NoError(t, execute("sites", "--sites", sites))
}

func TestSitesCommandInvalidSelector(t *testing.T) {
	dir := setupTestEnv(t)
	sites := writeSitesFile(t, dir, `{sites: [{key: "a", name: "A", url: "https://a.kr", selectors: {title: ["div[[["]}}]}`)
	assert.Error(t, execute("sites", "--sites", sites))
}

func TestDetectCommand(t *testing.T) {
	setupTestEnv(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testMallHome)
	}))
	defer server.Close()

	assert.NoError(t, execute("detect", server.URL))
	assert.Error(t, execute("detect"))
}

func TestSplitCommand(t *testing.T) {
	dir := setupTestEnv(t)
	store := storage.NewStore(dir)
	require.NoError(t, store.WriteSnapshot(&crawler.Snapshot{
		Site:     "testmall",
		Products: []crawler.Product{{ID: "11", Name: "표고버섯 1kg"}, {ID: "12", Name: "들기름 350ml"}},
	}))

	out := filepath.Join(dir, "split")
	require.NoError(t, execute("split", store.SnapshotPath("testmall"), out))

	entries, err := os.ReadDir(filepath.Join(out, "testmall"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
