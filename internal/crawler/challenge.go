package crawler

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// titleKeywords mark an interstitial only when they are the page title; ordinary pages
// mention captchas or load recaptcha scripts
var titleKeywords = []string{
	"just a moment",
	"attention required",
	"access denied",
	"captcha",
}

// bodyKeywords only appear on anti-bot interstitials
var bodyKeywords = []string{
	"cf-browser-verification",
	"_cf_chl_opt",
	"checking your browser",
	"verify you are human",
}

// DetectChallenge reports whether body looks like a challenge page and which keyword matched
func DetectChallenge(body []byte) (string, bool) {
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		title := strings.ToLower(doc.Find("title").First().Text())
		for _, keyword := range titleKeywords {
			if strings.Contains(title, keyword) {
				return keyword, true
			}
		}
	}

	lower := strings.ToLower(string(body))
	for _, keyword := range bodyKeywords {
		if strings.Contains(lower, keyword) {
			return keyword, true
		}
	}
	return "", false
}
