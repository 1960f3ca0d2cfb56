package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/andybalholm/cascadia"
	"github.com/titanous/json5"

	"sjsage522/mallcrawler/pkg/errors"
)

// Selectors holds the site-specific selector cascades. Each list is tried
// in order; the first selector with a non-empty match wins.
type Selectors struct {
	CategoryLinks []string `json:"categoryLinks,omitempty"`
	ProductList   []string `json:"productList,omitempty"`
	Title         []string `json:"title,omitempty"`
	Price         []string `json:"price,omitempty"`
	OriginalPrice []string `json:"originalPrice,omitempty"`
	Image         []string `json:"image,omitempty"`
	Link          []string `json:"link,omitempty"`
}

// All returns every selector of every cascade
func (s Selectors) All() []string {
	var all []string
	for _, list := range [][]string{s.CategoryLinks, s.ProductList, s.Title, s.Price, s.OriginalPrice, s.Image, s.Link} {
		all = append(all, list...)
	}
	return all
}

// SiteConfig describes one mall. Only Key, Name and URL are required;
// everything else falls back to platform presets and Config limits.
type SiteConfig struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Region   string `json:"region,omitempty"`
	URL      string `json:"url"`
	Encoding string `json:"encoding,omitempty"`
	Platform string `json:"platform,omitempty"`

	Selectors Selectors `json:"selectors,omitempty"`

	// CategoryPattern keeps only category links whose href contains it
	CategoryPattern string `json:"categoryPattern,omitempty"`
	PageParam       string `json:"pageParam,omitempty"`

	MaxPages      int `json:"maxPages,omitempty"`
	MaxCategories int `json:"maxCategories,omitempty"`
	MaxProducts   int `json:"maxProducts,omitempty"`
	DelayMS       int `json:"delayMs,omitempty"`
	BlockSeconds  int `json:"blockSeconds,omitempty"`

	Disabled bool `json:"disabled,omitempty"`
}

// Delay returns the pause between two requests to this site
func (s SiteConfig) Delay() time.Duration {
	return time.Duration(s.DelayMS) * time.Millisecond
}

// BlockTime returns how long the site is left alone after a rate limit
func (s SiteConfig) BlockTime() time.Duration {
	return time.Duration(s.BlockSeconds) * time.Second
}

type sitesFile struct {
	Sites []SiteConfig `json:"sites"`
}

var supportedEncodings = map[string]bool{
	"":       true,
	"utf-8":  true,
	"euc-kr": true,
	"cp949":  true,
}

// ApplyDefaults fills unset limits from the global configuration
func (s *SiteConfig) ApplyDefaults(cfg *Config) {
	s.Encoding = strings.ToLower(strings.TrimSpace(s.Encoding))
	if s.PageParam == "" {
		s.PageParam = "page"
	}
	if s.MaxPages <= 0 {
		s.MaxPages = cfg.MaxPages
	}
	if s.MaxCategories <= 0 {
		s.MaxCategories = cfg.MaxCategories
	}
	if s.MaxProducts <= 0 {
		s.MaxProducts = cfg.MaxProducts
	}
	if s.DelayMS <= 0 {
		s.DelayMS = int(cfg.RequestDelay / time.Millisecond)
	}
	if s.BlockSeconds <= 0 {
		s.BlockSeconds = int(cfg.BlockTime / time.Second)
	}
}

// Validate checks the required fields, the encoding and every selector
func (s SiteConfig) Validate() error {
	if s.Key == "" {
		return errors.NewValidation(s.Name, "site key must not be empty")
	}
	if s.Name == "" {
		return errors.NewValidation(s.Key, "site name must not be empty")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewValidation(s.Key, fmt.Sprintf("invalid site url %q", s.URL))
	}
	if !supportedEncodings[strings.ToLower(s.Encoding)] {
		return errors.NewValidation(s.Key, fmt.Sprintf("unsupported encoding %q", s.Encoding))
	}
	for _, sel := range s.Selectors.All() {
		if _, err := cascadia.Compile(sel); err != nil {
			return errors.New(errors.ErrorTypeValidation, s.Key, fmt.Sprintf("invalid selector %q", sel), err)
		}
	}
	return nil
}

// LoadSites reads site configurations from a JSON5 file and merges the
// optional "<name>.local.<ext>" override next to it. Sites in the local
// file replace matching keys field by field; unknown keys are appended.
// Empty strings, zero limits and empty selector lists in an override keep
// the base value. An explicit "disabled" flag always applies, so an
// override can re-enable a site. When neither file exists the built-in
// defaults are returned.
func LoadSites(path string, cfg *Config) ([]SiteConfig, error) {
	base, baseFound, err := readSitesFile(path)
	if err != nil {
		return nil, err
	}

	local, localFound, err := readSitesFile(localPath(path))
	if err != nil {
		return nil, err
	}

	sites := base
	if !baseFound && !localFound {
		sites = DefaultSites()
	} else if !baseFound {
		sites = nil
	}

	var disabled map[string]bool
	if localFound {
		if disabled, err = explicitDisabled(localPath(path)); err != nil {
			return nil, err
		}
	}

	sites, err = mergeSites(sites, local, disabled)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(sites))
	result := make([]SiteConfig, 0, len(sites))
	for _, site := range sites {
		site.ApplyDefaults(cfg)
		if err := site.Validate(); err != nil {
			return nil, err
		}
		if seen[site.Key] {
			return nil, errors.NewValidation(site.Key, "duplicate site key")
		}
		seen[site.Key] = true
		result = append(result, site)
	}
	return result, nil
}

func readSitesFile(path string) ([]SiteConfig, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewConfiguration("failed to read sites file "+path, err)
	}

	var file sitesFile
	if err := json5.Unmarshal(data, &file); err != nil {
		return nil, false, errors.NewConfiguration("failed to parse sites file "+path, err)
	}
	return file.Sites, true, nil
}

// explicitDisabled returns the "disabled" flags an override file sets,
// keyed by site. Absent flags are not reported.
func explicitDisabled(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfiguration("failed to read sites file "+path, err)
	}

	var raw struct {
		Sites []map[string]interface{} `json:"sites"`
	}
	if err := json5.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewConfiguration("failed to parse sites file "+path, err)
	}

	flags := make(map[string]bool)
	for _, site := range raw.Sites {
		key, _ := site["key"].(string)
		if v, ok := site["disabled"].(bool); ok && key != "" {
			flags[key] = v
		}
	}
	return flags, nil
}

func mergeSites(base, overrides []SiteConfig, disabled map[string]bool) ([]SiteConfig, error) {
	index := make(map[string]int, len(base))
	for i, site := range base {
		index[site.Key] = i
	}

	for _, override := range overrides {
		i, ok := index[override.Key]
		if !ok {
			index[override.Key] = len(base)
			base = append(base, override)
			continue
		}
		if err := mergo.Merge(&base[i], override, mergo.WithOverride); err != nil {
			return nil, errors.NewConfiguration("failed to merge site "+override.Key, err)
		}
		if v, ok := disabled[override.Key]; ok {
			base[i].Disabled = v
		}
	}
	return base, nil
}

// localPath turns "dir/sites.json5" into "dir/sites.local.json5"
func localPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".local"+ext)
}

// FilterSites keeps enabled sites, narrowed to keys when any are given
func FilterSites(sites []SiteConfig, keys ...string) []SiteConfig {
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	var result []SiteConfig
	for _, site := range sites {
		if len(keys) > 0 {
			if wanted[site.Key] {
				result = append(result, site)
			}
			continue
		}
		if !site.Disabled {
			result = append(result, site)
		}
	}
	return result
}

// DefaultSites returns the regional malls crawled when no sites file exists
func DefaultSites() []SiteConfig {
	return []SiteConfig{
		{
			Key:    "jnmall",
			Name:   "남도장터",
			Region: "전라남도",
			URL:    "https://www.jnmall.kr",
		},
		{
			Key:    "ejeju",
			Name:   "이제주몰",
			Region: "제주특별자치도",
			URL:    "https://mall.ejeju.net",
		},
		{
			Key:    "gwdmall",
			Name:   "강원더몰",
			Region: "강원특별자치도",
			URL:    "https://gwdmall.kr",
		},
		{
			Key:      "nongsarang",
			Name:     "충북 농사랑",
			Region:   "충청북도",
			URL:      "https://www.nongsarang.co.kr",
			Encoding: "euc-kr",
		},
		{
			Key:    "gmall",
			Name:   "사이소",
			Region: "경상북도",
			URL:    "https://www.cyso.co.kr",
		},
	}
}
