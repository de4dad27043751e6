package leads

import "strings"

// Acquisition sources recorded on a contact.
const (
	SourceGoogleAds  = "google_ads"
	SourceInstagram  = "instagram"
	SourceFacebook   = "facebook"
	SourceTikTok     = "tiktok"
	SourceIndication = "indication"
	SourceOrganic    = "organic"
)

type sourceRule struct {
	source   string
	keywords []string
}

// Order matters: the first rule with a matching keyword wins.
var sourceRules = []sourceRule{
	{SourceGoogleAds, []string{"vi no google", "pelo google", "anuncio google"}},
	{SourceInstagram, []string{"vi no insta", "pelo instagram", "vi no story", "anuncio insta"}},
	{SourceFacebook, []string{"vi no face", "pelo facebook", "anuncio face"}},
	{SourceTikTok, []string{"vi no tiktok", "pelo tiktok"}},
	{SourceIndication, []string{"indicação", "indicou", "recomendou"}},
}

// Classify infers where a lead came from using the text of their first
// message. Matching is a case-insensitive substring check.
func Classify(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range sourceRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.source
			}
		}
	}
	return SourceOrganic
}
