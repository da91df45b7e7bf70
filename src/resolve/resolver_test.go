package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/imagekiln/src/registry"
)

// TestLatest_Npm resolves through the npm dist-tag endpoint.
func TestLatest_Npm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/typescript-language-server/latest", r.URL.Path)
		fmt.Fprint(w, `{"version":"4.3.3"}`)
	}))
	defer srv.Close()

	s := NewService(Endpoints{Npm: srv.URL}, 5)
	got, err := s.Latest(context.Background(), &registry.Entry{
		Name:      "typescript-language-server",
		Kind:      registry.KindPackageManagerInstall,
		Ecosystem: registry.EcosystemNpm,
		Package:   "typescript-language-server",
	})
	require.NoError(t, err)
	assert.Equal(t, "4.3.3", got)
}

// TestLatest_PyPI resolves through PyPI's project JSON.
func TestLatest_PyPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pypi/python-lsp-server/json", r.URL.Path)
		fmt.Fprint(w, `{"info":{"version":"1.11.0"}}`)
	}))
	defer srv.Close()

	s := NewService(Endpoints{PyPI: srv.URL}, 5)
	got, err := s.Latest(context.Background(), &registry.Entry{
		Name:      "python-lsp-server",
		Kind:      registry.KindPackageManagerInstall,
		Ecosystem: registry.EcosystemPyPI,
		Package:   "python-lsp-server",
	})
	require.NoError(t, err)
	assert.Equal(t, "1.11.0", got)
}

// TestLatest_ForgeRelease resolves a release tag, strips the v prefix,
// and sends the configured bearer token.
func TestLatest_ForgeRelease(t *testing.T) {
	t.Setenv("TEST_FORGE_TOKEN", "s3cr3t")

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/rust-lang/rust-analyzer/releases/latest", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"tag_name":"v2024.1.1"}`)
	}))
	defer srv.Close()

	s := NewService(Endpoints{Forge: srv.URL, ForgeTokenEnv: "TEST_FORGE_TOKEN"}, 5)
	got, err := s.Latest(context.Background(), &registry.Entry{
		Name:   "rust-analyzer",
		Kind:   registry.KindArchiveDownload,
		Repo:   "rust-lang/rust-analyzer",
		StripV: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024.1.1", got)
	assert.Equal(t, "Bearer s3cr3t", gotAuth)
}

// TestLatest_GoModule picks the highest stable tag from the proxy list.
func TestLatest_GoModule(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/golang.org/x/tools/gopls/@v/list", r.URL.Path)
		fmt.Fprint(w, "v0.14.2\nv0.15.0\nv0.16.0-pre.1\n")
	}))
	defer srv.Close()

	s := NewService(Endpoints{GoProxy: srv.URL}, 5)
	got, err := s.Latest(context.Background(), &registry.Entry{
		Name:   "gopls",
		Kind:   registry.KindModuleInstall,
		Module: "golang.org/x/tools/gopls",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.15.0", got)
}

// TestLatest_GoModuleFallsBackToLatest uses @latest when the version
// list has no stable tags.
func TestLatest_GoModuleFallsBackToLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/example.com/tool/@v/list":
			fmt.Fprint(w, "")
		case "/example.com/tool/@latest":
			fmt.Fprint(w, `{"Version":"v0.0.0-20240101000000-abcdef123456"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	s := NewService(Endpoints{GoProxy: srv.URL}, 5)
	got, err := s.Latest(context.Background(), &registry.Entry{
		Name:   "tool",
		Kind:   registry.KindModuleInstall,
		Module: "example.com/tool",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0-20240101000000-abcdef123456", got)
}

// TestLatest_ServiceError wraps upstream failures as ResolutionError
// naming the entry and source.
func TestLatest_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewService(Endpoints{Npm: srv.URL}, 5)
	_, err := s.Latest(context.Background(), &registry.Entry{
		Name:      "ghost",
		Kind:      registry.KindPackageManagerInstall,
		Ecosystem: registry.EcosystemNpm,
		Package:   "ghost",
	})
	require.Error(t, err)

	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "ghost", rerr.Entry)
	assert.Equal(t, SourceNpm, rerr.Source)
	assert.Contains(t, err.Error(), "status 404")
}

// TestLatest_Custom runs the entry's command and trims its stdout.
func TestLatest_Custom(t *testing.T) {
	s := NewService(DefaultEndpoints(), 5)
	got, err := s.Latest(context.Background(), &registry.Entry{
		Name:    "clangd",
		Kind:    registry.KindArchiveDownload,
		Command: "printf ' 17.0.3\n'",
	})
	require.NoError(t, err)
	assert.Equal(t, "17.0.3", got)
}

// TestLatest_CustomFailure surfaces the command's stderr.
func TestLatest_CustomFailure(t *testing.T) {
	s := NewService(DefaultEndpoints(), 5)
	_, err := s.Latest(context.Background(), &registry.Entry{
		Name:    "clangd",
		Kind:    registry.KindArchiveDownload,
		Command: "echo upstream gone >&2; exit 3",
	})
	require.Error(t, err)

	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, SourceCustom, rerr.Source)
	assert.Contains(t, err.Error(), "upstream gone")
}

// TestLatest_CustomEmptyOutput rejects commands that print nothing.
func TestLatest_CustomEmptyOutput(t *testing.T) {
	s := NewService(DefaultEndpoints(), 5)
	_, err := s.Latest(context.Background(), &registry.Entry{
		Name:    "mute",
		Kind:    registry.KindArchiveDownload,
		Command: "true",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output")
}

// TestLatest_NoSource reports entries without resolvable coordinates.
func TestLatest_NoSource(t *testing.T) {
	s := NewService(DefaultEndpoints(), 5)
	_, err := s.Latest(context.Background(), &registry.Entry{
		Name: "adrift",
		Kind: registry.KindPackageManagerInstall,
	})
	require.Error(t, err)

	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "none", rerr.Source)
}

func TestHighestStable(t *testing.T) {
	tests := []struct {
		name string
		list string
		want string
	}{
		{"picks highest", "v0.1.0\nv0.3.0\nv0.2.0\n", "0.3.0"},
		{"skips prereleases", "v1.0.0\nv1.1.0-rc.1\n", "1.0.0"},
		{"all prerelease", "v1.1.0-rc.1\nv1.1.0-rc.2\n", ""},
		{"empty list", "\n", ""},
		{"garbage lines ignored", "not-a-version\nv2.0.1\n", "2.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, highestStable(tt.list))
		})
	}
}

func TestEscapeModulePath(t *testing.T) {
	assert.Equal(t, "github.com/!azure/azure-sdk", escapeModulePath("github.com/Azure/azure-sdk"))
	assert.Equal(t, "golang.org/x/tools/gopls", escapeModulePath("golang.org/x/tools/gopls"))
}
