// Package jurisdiction decides, without the backend, which privacy regime
// applies to a visitor and whether the consent banner must be shown.
package jurisdiction

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
)

// Headers consulted by Resolve.
const (
	HeaderCountry        = "X-C15t-Country"
	HeaderRegion         = "X-C15t-Region"
	HeaderAcceptLanguage = "Accept-Language"
)

// Jurisdiction codes.
const (
	CodeGDPR    = "GDPR"
	CodeUKGDPR  = "UK_GDPR"
	CodeCH      = "CH"
	CodeBR      = "BR"
	CodePIPEDA  = "PIPEDA"
	CodeAU      = "AU"
	CodeAPPI    = "APPI"
	CodePIPA    = "PIPA"
	CodeNone    = "NONE"
	CodeUnknown = "UNKNOWN"
)

var messages = map[string]string{
	CodeGDPR:    "GDPR or equivalent regulations require a cookie banner.",
	CodeUKGDPR:  "UK GDPR requires a cookie banner.",
	CodeCH:      "Switzerland requires similar data protection measures.",
	CodeBR:      "Brazil's LGPD requires consent for cookies.",
	CodePIPEDA:  "PIPEDA requires consent for data collection.",
	CodeAU:      "Australia's Privacy Act mandates transparency about data collection.",
	CodeAPPI:    "Japan's APPI requires consent for data collection.",
	CodePIPA:    "South Korea's PIPA requires consent for data collection.",
	CodeNone:    "No specific requirements",
	CodeUnknown: "Visitor location unknown; showing the banner.",
}

// EU member states plus the EEA countries Iceland, Liechtenstein and Norway.
var gdprCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true, "IS": true, "LI": true, "NO": true,
}

var countryCodes = map[string]string{
	"GB": CodeUKGDPR,
	"CH": CodeCH,
	"BR": CodeBR,
	"CA": CodePIPEDA,
	"AU": CodeAU,
	"JP": CodeAPPI,
	"KR": CodePIPA,
}

// ForCountry returns the jurisdiction of an ISO 3166-1 alpha-2 country code.
func ForCountry(country string) models.Jurisdiction {
	country = strings.ToUpper(strings.TrimSpace(country))

	code := CodeNone
	switch {
	case country == "":
		code = CodeUnknown
	case gdprCountries[country]:
		code = CodeGDPR
	default:
		if c, ok := countryCodes[country]; ok {
			code = c
		}
	}
	return models.Jurisdiction{Code: code, Message: messages[code]}
}

// ShowBanner reports whether the banner must be shown under j.
func ShowBanner(j models.Jurisdiction) bool {
	return j.Code != CodeNone
}

// Resolve builds an offline init response from request headers.
func Resolve(h http.Header) *models.InitResponse {
	country := strings.ToUpper(strings.TrimSpace(h.Get(HeaderCountry)))
	region := strings.ToUpper(strings.TrimSpace(h.Get(HeaderRegion)))

	j := ForCountry(country)
	return &models.InitResponse{
		ShowConsentBanner: ShowBanner(j),
		Jurisdiction:      j,
		Location:          models.Location{CountryCode: country, RegionCode: region},
		Language:          Language(h.Get(HeaderAcceptLanguage)).String(),
		Offline:           true,
	}
}

// Supported lists the languages banner translations exist for; the first
// one is the fallback.
var Supported = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Italian,
	language.Dutch,
	language.Portuguese,
	language.Polish,
	language.Swedish,
	language.Finnish,
}

var matcher = language.NewMatcher(Supported)

// Language picks the best supported base language for an Accept-Language
// header value.
func Language(accept string) language.Tag {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return Supported[0]
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return Supported[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Supported[0]
	}
	return Supported[idx]
}
