package config

import (
	"fmt"
	"strings"
)

// Normalize applies §6.1's derived-field and safe-mode rules to a
// decoded RawConfig, producing the immutable Config snapshot the hub
// and its collaborators consume. Warnings are non-fatal notices
// (e.g. a conflicting use_fpool) the caller should log.
func Normalize(raw RawConfig) (Config, []string, error) {
	var warnings []string

	raw.DataDir = expandHome(raw.DataDir)
	raw.HistDir = expandHome(raw.HistDir)

	cfg := Config{
		Raw:         raw,
		Acao:        splitSet(raw.Acao, true),
		Acam:        splitSet(raw.Acam, false),
		ThCover:     splitSet(raw.ThCovers, false),
		LogTemplate: raw.LogTemplate,
		Ls:          raw.Ls,
		Dotpart:     raw.Dotpart,
		NoThumb:     raw.NoThumb,
		NoMtagFf:    raw.NoMtagFf,
		NoRobots:    raw.NoRobots,
		ForceJS:     raw.ForceJS,
		Unpost:      raw.Unpost,
		NoDel:       raw.NoDel,
		NoMv:        raw.NoMv,
		Hardlink:    raw.Hardlink,
		Vague403:    raw.Vague403,
		Ban404:      raw.Ban404,
		Nih:         raw.Nih,
		NoDav:       raw.NoDav,
		NoLogues:    raw.NoLogues,
		NoReadme:    raw.NoReadme,
		NoFpool:     raw.NoFpool,
		ThPoke:      raw.ThPoke,
		IgnEbindAll: raw.IgnEbindAll,
		IgnEbind:    raw.IgnEbind,
		Q:           raw.Q,
		Wintitle:    raw.Wintitle,
	}

	if raw.RpLoc != "" {
		r, sr, rs, srs, err := deriveRpLoc(raw.RpLoc)
		if err != nil {
			return Config{}, nil, err
		}
		cfg.RpLoc, cfg.SrLoc, cfg.RsLoc, cfg.SrsLoc = r, sr, rs, srs
	}

	// zm_on/zm_off/zs_on/zs_off are split-and-trimmed but have no
	// further use as struct fields today; validate them here so a
	// malformed list surfaces at load time rather than at first use.
	_ = splitTrim(raw.ZmOn)
	_ = splitTrim(raw.ZmOff)
	_ = splitTrim(raw.ZsOn)
	_ = splitTrim(raw.ZsOff)

	switch {
	case raw.S >= 3:
		cfg.SS = true
		cfg.S = true
		cfg.NoDav = true
		cfg.NoLogues = true
		cfg.NoReadme = true
		if raw.LogTemplate == "" {
			cfg.LogTemplate = "cpp-%Y-%m%d-%H%M%S.txt.xz"
		}
		if raw.Ls == "" {
			cfg.Ls = "**,*,ln,p,r"
		}
		fallthrough
	case raw.S == 2:
		cfg.S = true
		cfg.Unpost = 0
		cfg.NoDel = true
		cfg.NoMv = true
		cfg.Hardlink = true
		cfg.Vague403 = true
		cfg.Ban404 = "50,60,1440"
		cfg.Nih = true
		fallthrough
	case raw.S == 1:
		cfg.Dotpart = true
		cfg.NoThumb = true
		cfg.NoMtagFf = true
		cfg.NoRobots = true
		cfg.ForceJS = true
	}

	if raw.J != 1 {
		cfg.NoFpool = true
		if raw.UseFpool {
			warnings = append(warnings, fmt.Sprintf("use_fpool ignored: j=%d forces no_fpool", raw.J))
		}
	}

	cfg.ThPoke = min(raw.ThPoke, min(raw.ThMaxAge, raw.AcMaxAge))

	cfg.Zms = assembleZms(raw)

	return cfg, warnings, nil
}

// splitTrim splits s on ',', trims each entry, and drops empty ones.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitSet is splitTrim folded into a unique-membership set, optionally
// lowercasing each entry first.
func splitSet(s string, lower bool) map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range splitTrim(s) {
		if lower {
			p = strings.ToLower(p)
		}
		set[p] = struct{}{}
	}
	return set
}

// deriveRpLoc validates rp_loc as a bare path and derives its three
// prefixed/suffixed forms.
func deriveRpLoc(r string) (rOut, sr, rs, srs string, err error) {
	if strings.Contains(r, "//") || strings.Contains(r, ":") {
		return "", "", "", "", fmt.Errorf("rp_loc must be a bare path, got %q", r)
	}
	return r, "/" + r, r + "/", "/" + r + "/", nil
}

// assembleZms builds the service-announce string from enabled protocols.
func assembleZms(raw RawConfig) string {
	var on []string
	if raw.HTTPEnabled {
		on = append(on, "http")
	}
	if raw.FtpEnabled {
		on = append(on, "ftp")
	}
	if raw.SmbEnabled {
		on = append(on, "smb")
	}
	return strings.Join(on, ",")
}
