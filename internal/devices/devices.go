// Package devices classifies user agents into coarse device categories and
// keeps per-category counters.
package devices

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Category string

const (
	MobileIOS      Category = "mobile_ios"
	MobileAndroid  Category = "mobile_android"
	TabletIOS      Category = "tablet_ios"
	TabletAndroid  Category = "tablet_android"
	DesktopWindows Category = "desktop_windows"
	DesktopMac     Category = "desktop_mac"
	DesktopLinux   Category = "desktop_linux"
	Bot            Category = "bot"
	Other          Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	MobileIOS,
	MobileAndroid,
	TabletIOS,
	TabletAndroid,
	DesktopWindows,
	DesktopMac,
	DesktopLinux,
	Bot,
	Other,
}

var botMarkers = []string{
	"bot",
	"crawler",
	"spider",
	"googlebot",
	"bingbot",
	"slurp",
	"duckduckbot",
	"baiduspider",
	"yandexbot",
	"facebookexternalhit",
	"twitterbot",
	"linkedinbot",
}

// Classify maps a user agent to exactly one category. Matching is
// case-insensitive and the first rule that matches wins.
func Classify(userAgent string) Category {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return Other
	}

	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			return Bot
		}
	}

	switch {
	case strings.Contains(ua, "ipad"):
		return TabletIOS
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipod"):
		return MobileIOS
	case strings.Contains(ua, "android"):
		if strings.Contains(ua, "mobile") {
			return MobileAndroid
		}
		return TabletAndroid
	case strings.Contains(ua, "windows"):
		return DesktopWindows
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os"):
		return DesktopMac
	case strings.Contains(ua, "linux"):
		return DesktopLinux
	}

	return Other
}

var titleCaser = cases.Title(language.English)

// Label returns a human readable name such as "Mobile iOS".
func Label(c Category) string {
	parts := strings.Split(string(c), "_")
	for i, part := range parts {
		switch part {
		case "ios":
			parts[i] = "iOS"
		default:
			parts[i] = titleCaser.String(part)
		}
	}
	return strings.Join(parts, " ")
}
