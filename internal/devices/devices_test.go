package devices_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio/internal/devices"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      devices.Category
	}{
		{
			name:      "iphone safari",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			want:      devices.MobileIOS,
		},
		{
			name:      "ipod touch",
			userAgent: "Mozilla/5.0 (iPod touch; CPU iPhone OS 12_5 like Mac OS X)",
			want:      devices.MobileIOS,
		},
		{
			name:      "ipad wins over mac os marker",
			userAgent: "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15",
			want:      devices.TabletIOS,
		},
		{
			name:      "android phone",
			userAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36",
			want:      devices.MobileAndroid,
		},
		{
			name:      "android tablet without mobile token",
			userAgent: "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
			want:      devices.TabletAndroid,
		},
		{
			name:      "windows chrome",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
			want:      devices.DesktopWindows,
		},
		{
			name:      "mac safari",
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15",
			want:      devices.DesktopMac,
		},
		{
			name:      "linux firefox",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want:      devices.DesktopLinux,
		},
		{
			name:      "googlebot",
			userAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			want:      devices.Bot,
		},
		{
			name:      "bot marker beats iphone",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X) (compatible; Bingbot/2.0)",
			want:      devices.Bot,
		},
		{
			name:      "facebook crawler",
			userAgent: "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)",
			want:      devices.Bot,
		},
		{
			name:      "case insensitive",
			userAgent: "SOME-CRAWLER/1.0",
			want:      devices.Bot,
		},
		{name: "empty", userAgent: "", want: devices.Other},
		{name: "curl", userAgent: "curl/8.4.0", want: devices.Other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, devices.Classify(tt.userAgent))
		})
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Mobile iOS", devices.Label(devices.MobileIOS))
	assert.Equal(t, "Desktop Windows", devices.Label(devices.DesktopWindows))
	assert.Equal(t, "Bot", devices.Label(devices.Bot))
}

func TestStats(t *testing.T) {
	t.Run("add and total", func(t *testing.T) {
		var stats devices.Stats
		stats.Add(devices.MobileIOS)
		stats.Add(devices.MobileIOS)
		stats.Add(devices.DesktopLinux)
		stats.Add(devices.Category("unknown"))

		assert.Equal(t, 2, stats.MobileIOS)
		assert.Equal(t, 1, stats.DesktopLinux)
		assert.Equal(t, 1, stats.Other)
		assert.Equal(t, 4, stats.Total())
	})

	t.Run("merge is element-wise and zero is identity", func(t *testing.T) {
		a := devices.Stats{MobileIOS: 2, Bot: 1}
		b := devices.Stats{MobileIOS: 3, DesktopMac: 4}

		assert.Equal(t, devices.Stats{MobileIOS: 5, Bot: 1, DesktopMac: 4}, a.Merge(b))
		assert.Equal(t, a.Merge(b), b.Merge(a))
		assert.Equal(t, a, a.Merge(devices.Stats{}))
	})

	t.Run("map has every key", func(t *testing.T) {
		m := devices.Stats{Other: 7}.Map()
		assert.Len(t, m, len(devices.Categories))
		assert.Equal(t, 7, m[devices.Other])
		assert.Equal(t, 0, m[devices.TabletAndroid])
	})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data string
		want devices.Stats
	}{
		{name: "empty", data: "", want: devices.Stats{}},
		{name: "malformed", data: "{not json", want: devices.Stats{}},
		{name: "not an object", data: "[1,2]", want: devices.Stats{}},
		{
			name: "partial object zero-fills",
			data: `{"mobile_ios": 3, "desktop_mac": 1}`,
			want: devices.Stats{MobileIOS: 3, DesktopMac: 1},
		},
		{
			name: "non numeric and unknown keys ignored",
			data: `{"mobile_ios": "3", "bot": true, "smart_tv": 9, "other": 2}`,
			want: devices.Stats{Other: 2},
		},
		{
			name: "counts beyond 32 bits survive",
			data: `{"other": 3000000000}`,
			want: devices.Stats{Other: 3000000000},
		},
		{
			name: "huge values saturate",
			data: `{"bot": 1e300}`,
			want: devices.Stats{Bot: math.MaxInt},
		},
		{
			name: "fractions truncate",
			data: `{"mobile_ios": 2.9, "desktop_mac": 0.5}`,
			want: devices.Stats{MobileIOS: 2},
		},
		{
			name: "negative clamps to zero",
			data: `{"desktop_linux": -4, "tablet_ios": 1}`,
			want: devices.Stats{TabletIOS: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, devices.Decode([]byte(tt.data)))
		})
	}

	t.Run("encode writes every key", func(t *testing.T) {
		encoded := string(devices.Stats{Bot: 1}.Encode())
		for _, c := range devices.Categories {
			assert.Contains(t, encoded, `"`+string(c)+`"`)
		}
		assert.Equal(t, devices.Stats{Bot: 1}, devices.Decode([]byte(encoded)))
	})
}
