package qwc

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	data, err := Render(Options{
		AppURL:   "https://qb.190group.example/qbwc",
		UserName: "qbsync",
		FileID:   "{0b7b6f1e-4c1c-4f7e-9a55-2f1e8f7c3d21}",
	})
	require.NoError(t, err)
	g.Assert(t, "default_descriptor", data)
}

func TestRender_Overrides(t *testing.T) {
	data, err := Render(Options{
		AppName:         "Warehouse <B>",
		AppURL:          "http://localhost:8085/qbwc",
		CertURL:         "https://cert.example",
		AppSupport:      "https://support.example",
		UserName:        "ops",
		RunEveryMinutes: 5,
		ReadOnly:        true,
	})
	require.NoError(t, err)

	doc := string(data)
	assert.Contains(t, doc, "<AppName>Warehouse &lt;B&gt;</AppName>")
	assert.Contains(t, doc, "<CertURL>https://cert.example</CertURL>")
	assert.Contains(t, doc, "<AppSupport>https://support.example</AppSupport>")
	assert.Contains(t, doc, "<RunEveryNMinutes>5</RunEveryNMinutes>")
	assert.Contains(t, doc, "<IsReadOnly>true</IsReadOnly>")
}

func TestRender_GeneratesFileID(t *testing.T) {
	data, err := Render(Options{AppURL: "http://localhost:8085/qbwc", UserName: "ops"})
	require.NoError(t, err)

	pattern := regexp.MustCompile(`<FileID>\{[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}\}</FileID>`)
	assert.Regexp(t, pattern, string(data))
	assert.Contains(t, string(data), "<CertURL>http://localhost:8085</CertURL>")
}

func TestRender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{name: "missing url", opts: Options{UserName: "ops"}, wantErr: ErrMissingAppURL},
		{name: "relative url", opts: Options{AppURL: "/qbwc", UserName: "ops"}, wantErr: ErrInvalidAppURL},
		{name: "no host", opts: Options{AppURL: "https://", UserName: "ops"}, wantErr: ErrInvalidAppURL},
		{name: "missing user", opts: Options{AppURL: "https://qb.example/qbwc", UserName: "  "}, wantErr: ErrMissingUserName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "qbsync.qwc")

	require.NoError(t, WriteFile(path, Options{
		AppURL:   "https://qb.190group.example/qbwc",
		UserName: "qbsync",
		FileID:   "{0b7b6f1e-4c1c-4f7e-9a55-2f1e8f7c3d21}",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	golden, err := os.ReadFile(filepath.Join("testdata", "golden", "default_descriptor.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(golden), string(data))
}
