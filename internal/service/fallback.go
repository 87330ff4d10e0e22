package service

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/basel-ax/watchimage/internal/domain"
)

var (
	imageExtension = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)(\?.*)?$`)
	catalogueYear  = regexp.MustCompile(`/catalogue/\d{4}/`)
)

// manufacturerDomains are accepted from the suggester even without an image extension
var manufacturerDomains = []string{"rolex.com", "omegawatches.com", "patek.com"}

// describeWatch builds the prompt sent to the URL suggester
func describeWatch(req domain.ImageRequest) string {
	reference := strings.TrimSpace(req.ReferenceNumber)
	if reference == "" {
		reference = "Unknown"
	}

	var b strings.Builder
	b.WriteString("You are an expert in luxury watch product image URLs. ")
	b.WriteString("Given the following watch details, provide the most likely official product image URL from the manufacturer's website.\n\n")
	b.WriteString("Watch Details:\n")
	fmt.Fprintf(&b, "- Manufacturer: %s\n", strings.TrimSpace(req.Manufacturer))
	fmt.Fprintf(&b, "- Model: %s\n", strings.TrimSpace(req.Model))
	fmt.Fprintf(&b, "- Reference Number: %s\n\n", reference)
	b.WriteString("IMPORTANT RULES:\n")
	b.WriteString("1. ONLY provide the official image URL from the manufacturer's CDN/media server\n")
	b.WriteString("2. For Rolex: Use format https://media.rolex.com/image/upload/q_auto:eco/f_auto/t_v7-majesty/c_limit,w_1200/v1/catalogue/{YEAR}/upright-c/m{reference-lowercase}\n")
	b.WriteString("3. For Omega: Use format https://www.omegawatches.com/media/catalog/product/...\n")
	b.WriteString("4. Prefer high-resolution product images (not thumbnails)\n")
	b.WriteString("5. Respond with ONLY the URL, nothing else\n")
	b.WriteString("6. If unsure, try multiple common URL patterns for this manufacturer\n\n")
	b.WriteString("Respond with the most likely image URL:")
	return b.String()
}

// cleanSuggestion strips whitespace and the quoting models like to add around URLs
func cleanSuggestion(text string) string {
	return strings.Trim(strings.TrimSpace(text), "`\"'<> \t\r\n")
}

// isValidImageURL accepts absolute http(s) URLs that look like an image or
// point at a manufacturer domain.
func isValidImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if imageExtension.MatchString(raw) {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range manufacturerDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// yearVariants returns raw with the catalogue year replaced by recent years,
// newest first. URLs without a catalogue year have no variants.
func yearVariants(raw string, now time.Time) []string {
	if !catalogueYear.MatchString(raw) {
		return nil
	}
	current := now.Year()
	var variants []string
	for year := current; year >= current-3; year-- {
		v := catalogueYear.ReplaceAllString(raw, fmt.Sprintf("/catalogue/%d/", year))
		if v != raw {
			variants = append(variants, v)
		}
	}
	return variants
}
