package service

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Brand identifies a manufacturer with a known image catalog
type Brand string

const (
	BrandUnknown        Brand = ""
	BrandRolex          Brand = "rolex"
	BrandOmega          Brand = "omega"
	BrandPatek          Brand = "patek-philippe"
	BrandAudemarsPiguet Brand = "audemars-piguet"
	BrandIWC            Brand = "iwc"
)

const (
	rolexCatalogURL = "https://media.rolex.com/image/upload/q_auto:eco/f_auto/t_v7-majesty/c_limit,w_1200/v1/catalogue/%d/upright-c/m%s"
	rolexLegacyURL  = "https://content.rolex.com/dam/new-watches-2024/configure-hub/m%[1]s/1-configure/configure-2024-%[2]s-m%[1]s_portrait.png"
	omegaProductURL = "https://www.omegawatches.com/media/catalog/product/omega-seamaster-diver-300m-%s.png"
)

// brandFragments is matched in order against the normalized manufacturer name
var brandFragments = []struct {
	brand     Brand
	fragments []string
}{
	{BrandRolex, []string{"rolex"}},
	{BrandOmega, []string{"omega"}},
	{BrandPatek, []string{"patek", "philippe"}},
	{BrandAudemarsPiguet, []string{"audemars", "piguet"}},
	{BrandIWC, []string{"iwc"}},
}

// DetectBrand maps a free-form manufacturer name to a Brand
func DetectBrand(manufacturer string) Brand {
	name := strings.ToLower(strings.TrimSpace(manufacturer))
	if name == "" {
		return BrandUnknown
	}
	for _, entry := range brandFragments {
		for _, fragment := range entry.fragments {
			if strings.Contains(name, fragment) {
				return entry.brand
			}
		}
	}
	return BrandUnknown
}

// candidateFunc builds candidate URLs from a non-empty reference number
type candidateFunc func(reference, model string, now time.Time) []string

// Catalog generates candidate image URLs per brand
type Catalog struct {
	now        func() time.Time
	generators map[Brand]candidateFunc
}

// NewCatalog creates a catalog with the built-in brand generators
func NewCatalog(now func() time.Time) *Catalog {
	if now == nil {
		now = time.Now
	}
	return &Catalog{
		now: now,
		generators: map[Brand]candidateFunc{
			BrandRolex: rolexCandidates,
			BrandOmega: omegaCandidates,
			// No public URL scheme is known for these yet; they go to the fallback.
			BrandPatek:          noCandidates,
			BrandAudemarsPiguet: noCandidates,
			BrandIWC:            noCandidates,
		},
	}
}

// Candidates returns the candidate URLs for brand in the order they should be checked
func (c *Catalog) Candidates(brand Brand, reference, model string) []string {
	gen, ok := c.generators[brand]
	if !ok {
		return nil
	}
	if strings.TrimSpace(reference) == "" {
		return nil
	}
	return gen(reference, model, c.now())
}

// Registered reports whether brand has a generator
func (c *Catalog) Registered(brand Brand) bool {
	_, ok := c.generators[brand]
	return ok
}

// NormalizeRolexReference lowercases the reference, strips whitespace and
// makes sure the final four characters are separated by a dash.
func NormalizeRolexReference(reference string) string {
	ref := strings.ToLower(stripSpaces(reference))
	if !strings.Contains(ref, "-") && len(ref) > 4 {
		ref = ref[:len(ref)-4] + "-" + ref[len(ref)-4:]
	}
	return ref
}

// catalogYears lists the catalogue years to try, newest first
func catalogYears(now time.Time) []int {
	current := now.Year()
	years := make([]int, 0, 5)
	seen := make(map[int]bool, 5)
	for _, y := range []int{current, current - 1, current - 2, 2024, 2023} {
		if seen[y] {
			continue
		}
		seen[y] = true
		years = append(years, y)
	}
	return years
}

func rolexCandidates(reference, model string, now time.Time) []string {
	ref := NormalizeRolexReference(reference)

	var urls []string
	for _, year := range catalogYears(now) {
		urls = append(urls, fmt.Sprintf(rolexCatalogURL, year, ref))
	}

	modelSlug := strings.Join(strings.Fields(strings.ToLower(model)), "-")
	urls = append(urls, fmt.Sprintf(rolexLegacyURL, ref, modelSlug))
	return urls
}

func omegaCandidates(reference, _ string, _ time.Time) []string {
	ref := strings.ToLower(strings.ReplaceAll(stripSpaces(reference), ".", ""))
	return []string{fmt.Sprintf(omegaProductURL, ref)}
}

func noCandidates(string, string, time.Time) []string {
	return nil
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
