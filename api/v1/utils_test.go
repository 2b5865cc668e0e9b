package v1

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIPVariants(t *testing.T) {
	t.Helper()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain ipv4", raw: "79.144.65.173", want: "79.144.65.173"},
		{name: "ipv4 with spaces", raw: " 79.144.65.173 ", want: "79.144.65.173"},
		{name: "quoted ipv4", raw: "\"79.144.65.173\"", want: "79.144.65.173"},
		{name: "ipv4 with port", raw: "79.144.65.173:443", want: "79.144.65.173"},
		{name: "quoted forwarded ipv4", raw: "\"79.144.65.173:1234\"", want: "79.144.65.173"},
		{name: "ipv6 literal", raw: "2001:db8::1", want: "2001:db8::1"},
		{name: "ipv6 in brackets", raw: "[2001:db8::1]", want: "2001:db8::1"},
		{name: "ipv6 with port", raw: "[2001:db8::1]:8443", want: "2001:db8::1"},
		{name: "ipv6 with zone", raw: "fe80::1%eth0", want: "fe80::1"},
		{name: "ipv4 mapped ipv6", raw: "::ffff:203.0.113.9", want: "203.0.113.9"},
		{name: "invalid value", raw: "not-an-ip", want: ""},
		{name: "empty", raw: "   ", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, parsed := normalizeIP(tc.raw)
			assert.Equal(t, tc.want, got)

			if tc.want == "" {
				assert.Nil(t, parsed)
				return
			}

			require.NotNil(t, parsed)
			assert.Equal(t, tc.want, parsed.String())
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "first forwarded-for entry wins",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.20, 10.0.0.1", "X-Real-IP": "198.51.100.7"},
			want:    "203.0.113.20",
		},
		{
			name:    "private forwarded-for address is kept",
			headers: map[string]string{"X-Forwarded-For": "192.168.1.10"},
			want:    "192.168.1.10",
		},
		{
			name:    "falls back to x-real-ip",
			headers: map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "198.51.100.7"},
			want:    "198.51.100.7",
		},
		{
			name:    "forwarded header",
			headers: map[string]string{"Forwarded": `for="[2001:db8::1]:8443";proto=https`},
			want:    "2001:db8::1",
		},
		{
			name:    "unknown without headers",
			headers: map[string]string{},
			want:    unknownClientIP,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return c.SendString(getClientIP(c))
			})

			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tc.want, string(body))
		})
	}
}

func TestClientIPResolver(t *testing.T) {
	resolve := func(t *testing.T, resolver IPResolver) string {
		app := fiber.New()
		app.Get("/", func(c *fiber.Ctx) error {
			return c.SendString(resolver(c))
		})

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.20")
		req.Header.Set("X-Real-IP", "198.51.100.7")
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	t.Run("trusted proxy headers", func(t *testing.T) {
		assert.Equal(t, "203.0.113.20", resolve(t, ClientIPResolver(true)))
	})

	t.Run("untrusted headers fall back to the peer", func(t *testing.T) {
		assert.Equal(t, unknownClientIP, resolve(t, ClientIPResolver(false)))
	})
}
