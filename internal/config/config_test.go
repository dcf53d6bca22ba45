package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	raw, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 1, raw.J)
	require.Equal(t, 90, raw.SrchTime)
	require.Equal(t, 1000, raw.SrchHits)
	require.Equal(t, "cpp-%Y-%m%d.txt", raw.LogTemplate)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte("srch_time: 30\nj: 4\n"), 0o644))

	raw, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, 30, raw.SrchTime)
	require.Equal(t, 4, raw.J)
	require.Equal(t, 1000, raw.SrchHits, "unset keys keep their default")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte("srch_time: 30\n"), 0o644))

	t.Setenv("FILEHUB_SRCH_TIME", "15")
	raw, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, 15, raw.SrchTime)
}

func TestLoadRejectsOutOfRangeSafeLevel(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte("s: 9\n"), 0o644))

	_, err := Load(p)
	require.Error(t, err)
}

func TestNormalizePathExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	raw := RawConfig{DataDir: "~/data", HistDir: "~/hist"}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, home+"/data", cfg.Raw.DataDir)
	require.Equal(t, home+"/hist", cfg.Raw.HistDir)
}

func TestNormalizeAcaoLowercasedSet(t *testing.T) {
	raw := RawConfig{Acao: " Foo.com, Bar.com ,Foo.com,"}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, cfg.Acao, 2)
	_, ok := cfg.Acao["foo.com"]
	require.True(t, ok)
	_, ok = cfg.Acao["bar.com"]
	require.True(t, ok)
}

func TestNormalizeAcamSetNotLowercased(t *testing.T) {
	raw := RawConfig{Acam: "GET,POST,get"}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, cfg.Acam, 3, "acam is not case-folded like acao")
}

func TestNormalizeThCoversSet(t *testing.T) {
	raw := RawConfig{ThCovers: "cover.jpg, folder.png,,cover.jpg"}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, cfg.ThCover, 2)
}

func TestNormalizeRpLocDerivedForms(t *testing.T) {
	raw := RawConfig{RpLoc: "api"}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "api", cfg.RpLoc)
	require.Equal(t, "/api", cfg.SrLoc)
	require.Equal(t, "api/", cfg.RsLoc)
	require.Equal(t, "/api/", cfg.SrsLoc)
}

func TestNormalizeRpLocRejectsDoubleSlash(t *testing.T) {
	raw := RawConfig{RpLoc: "a//b"}
	_, _, err := Normalize(raw)
	require.Error(t, err)
}

func TestNormalizeRpLocRejectsColon(t *testing.T) {
	raw := RawConfig{RpLoc: "http://evil"}
	_, _, err := Normalize(raw)
	require.Error(t, err)
}

func TestNormalizeSafeLevel1(t *testing.T) {
	raw := RawConfig{S: 1}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.True(t, cfg.Dotpart)
	require.True(t, cfg.NoThumb)
	require.True(t, cfg.NoMtagFf)
	require.True(t, cfg.NoRobots)
	require.True(t, cfg.ForceJS)
	require.False(t, cfg.S)
	require.False(t, cfg.SS)
}

func TestNormalizeSafeLevel2CascadesLevel1(t *testing.T) {
	raw := RawConfig{S: 2}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.True(t, cfg.S)
	require.Equal(t, 0, cfg.Unpost)
	require.True(t, cfg.NoDel)
	require.True(t, cfg.NoMv)
	require.True(t, cfg.Hardlink)
	require.True(t, cfg.Vague403)
	require.Equal(t, "50,60,1440", cfg.Ban404)
	require.True(t, cfg.Nih)
	require.True(t, cfg.Dotpart, "level 2 cascades level 1's forces")
}

func TestNormalizeSafeLevel3CascadesAll(t *testing.T) {
	raw := RawConfig{S: 3}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.True(t, cfg.SS)
	require.True(t, cfg.NoDav)
	require.True(t, cfg.NoLogues)
	require.True(t, cfg.NoReadme)
	require.Equal(t, "cpp-%Y-%m%d-%H%M%S.txt.xz", cfg.LogTemplate)
	require.Equal(t, "**,*,ln,p,r", cfg.Ls)
	require.True(t, cfg.NoDel, "level 3 cascades level 2's forces")
	require.True(t, cfg.Dotpart, "level 3 cascades level 1's forces")
}

func TestNormalizeSafeLevel3KeepsExplicitLogTemplate(t *testing.T) {
	raw := RawConfig{S: 3, LogTemplate: "custom-%Y.txt"}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "custom-%Y.txt", cfg.LogTemplate)
}

func TestNormalizeNonDefaultWorkersForcesNoFpool(t *testing.T) {
	raw := RawConfig{J: 4, UseFpool: true}
	cfg, warnings, err := Normalize(raw)
	require.NoError(t, err)
	require.True(t, cfg.NoFpool)
	require.Len(t, warnings, 1)
}

func TestNormalizeDefaultWorkersLeavesFpoolAlone(t *testing.T) {
	raw := RawConfig{J: 1, UseFpool: true}
	cfg, warnings, err := Normalize(raw)
	require.NoError(t, err)
	require.False(t, cfg.NoFpool)
	require.Empty(t, warnings)
}

func TestNormalizeThPokeClamped(t *testing.T) {
	raw := RawConfig{ThPoke: 500, ThMaxAge: 200, AcMaxAge: 9000}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, 200, cfg.ThPoke)
}

func TestNormalizeZmsAssembledFromEnabledProtocols(t *testing.T) {
	raw := RawConfig{HTTPEnabled: true, SmbEnabled: true}
	cfg, _, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "http,smb", cfg.Zms)
}

func TestNormalizeZmsEmptyWhenNoProtocolsEnabled(t *testing.T) {
	cfg, _, err := Normalize(RawConfig{})
	require.NoError(t, err)
	require.Equal(t, "", cfg.Zms)
}
