// Package config loads and normalizes the hub's configuration snapshot
// (spec §6.1), following the teacher's precedent of layering koanf
// providers (confmap defaults, a yaml file, then env overrides) ahead
// of a jsonschema validation pass, then applying the domain-specific
// normalization rules by hand.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/clach04/copyparty/internal/errs"
)

// RawConfig is the configuration snapshot as decoded from the merged
// koanf tree, before Normalize() applies the derived-field and
// safe-mode rules (spec §6.1).
type RawConfig struct {
	DataDir string `koanf:"data_dir"`
	HistDir string `koanf:"hist_dir"`

	// Zm/Zs enable the mDNS/SSDP responders at all; ZmOn/ZmOff/ZsOn/ZsOff
	// are comma-joined interface allow/deny lists, per §6.1's "split on
	// ',', trimmed, empty entries dropped".
	Zm    bool   `koanf:"zm"`
	Zs    bool   `koanf:"zs"`
	ZmOn  string `koanf:"zm_on"`
	ZmOff string `koanf:"zm_off"`
	ZsOn  string `koanf:"zs_on"`
	ZsOff string `koanf:"zs_off"`
	Acao  string `koanf:"acao"`
	Acam  string `koanf:"acam"`

	RpLoc    string `koanf:"rp_loc"`
	ThCovers string `koanf:"th_covers"`

	// S is the safe-mode escalation level: 0 (off), 1 (-s), 2 (-ss), 3 (-sss).
	S int `koanf:"s"`

	J int `koanf:"j"`

	ThPoke   int `koanf:"th_poke"`
	ThMaxAge int `koanf:"th_maxage"`
	AcMaxAge int `koanf:"ac_maxage"`

	UseFpool bool `koanf:"use_fpool"`
	NoFpool  bool `koanf:"no_fpool"`

	LogTemplate string `koanf:"log_template"`
	Ls          string `koanf:"ls"`

	Dotpart   bool `koanf:"dotpart"`
	NoThumb   bool `koanf:"no_thumb"`
	NoMtagFf  bool `koanf:"no_mtag_ff"`
	NoRobots  bool `koanf:"no_robots"`
	ForceJS   bool `koanf:"force_js"`

	Unpost   int    `koanf:"unpost"`
	NoDel    bool   `koanf:"no_del"`
	NoMv     bool   `koanf:"no_mv"`
	Hardlink bool   `koanf:"hardlink"`
	Vague403 bool   `koanf:"vague_403"`
	Ban404   string `koanf:"ban_404"`
	Nih      bool   `koanf:"nih"`

	NoDav     bool `koanf:"no_dav"`
	NoLogues  bool `koanf:"no_logues"`
	NoReadme  bool `koanf:"no_readme"`

	HTTPEnabled bool `koanf:"http"`
	FtpEnabled  bool `koanf:"ftp"`
	SmbEnabled  bool `koanf:"smb"`

	SrchTime int `koanf:"srch_time"`
	SrchHits int `koanf:"srch_hits"`

	Salt   string `koanf:"salt"`
	FkSalt string `koanf:"fk_salt"`

	// J is the worker count SvcHub feeds to the broker backend-selection
	// probe; IgnEbindAll/IgnEbind relax the worker-up barrier's patience
	// and its fatal-on-timeout behavior, respectively.
	IgnEbindAll bool `koanf:"ign_ebind_all"`
	IgnEbind    bool `koanf:"ign_ebind"`

	// Q silences the enabled-mode log path entirely (file sink only).
	Q bool `koanf:"q"`

	// Wintitle is carried into Config as-is; nothing in this module acts
	// on it (no terminal-title reset is printed at shutdown).
	Wintitle bool `koanf:"wintitle"`
}

// Config is the normalized, immutable snapshot SvcHub and its
// collaborators actually use.
type Config struct {
	Raw RawConfig

	Acao    map[string]struct{}
	Acam    map[string]struct{}
	ThCover map[string]struct{}

	RpLoc   string
	SrLoc   string
	RsLoc   string
	SrsLoc  string

	LogTemplate string
	Ls          string

	Dotpart  bool
	NoThumb  bool
	NoMtagFf bool
	NoRobots bool
	ForceJS  bool

	S        bool
	Unpost   int
	NoDel    bool
	NoMv     bool
	Hardlink bool
	Vague403 bool
	Ban404   string
	Nih      bool

	SS       bool
	NoDav    bool
	NoLogues bool
	NoReadme bool

	NoFpool bool

	ThPoke int

	Zms string

	IgnEbindAll bool
	IgnEbind    bool
	Q           bool
	Wintitle    bool
}

//go:embed schema.json
var schemaJSON []byte

var defaults = map[string]any{
	"data_dir":     "./data",
	"hist_dir":     "./hist",
	"j":            1,
	"srch_time":    90,
	"srch_hits":    1000,
	"th_poke":      300,
	"th_maxage":    86400,
	"ac_maxage":    86400,
	"log_template": "cpp-%Y-%m%d.txt",
	"ls":           "**",
}

// Load composes defaults, an optional yaml file, and env var overrides
// ("FILEHUB_"-prefixed, following the teacher's koanf env convention),
// validates the merged tree against the embedded schema, and decodes
// it into a RawConfig.
func Load(filePath string) (RawConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return RawConfig{}, &errs.ConfigError{Msg: fmt.Sprintf("load defaults: %v", err)}
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return RawConfig{}, &errs.ConfigError{Msg: fmt.Sprintf("load %s: %v", filePath, err)}
		}
	}

	if err := k.Load(env.Provider("FILEHUB_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "FILEHUB_"))
	}), nil); err != nil {
		return RawConfig{}, &errs.ConfigError{Msg: fmt.Sprintf("load env: %v", err)}
	}

	if err := validate(k.Raw()); err != nil {
		return RawConfig{}, &errs.ConfigError{Msg: err.Error()}
	}

	var raw RawConfig
	if err := k.Unmarshal("", &raw); err != nil {
		return RawConfig{}, &errs.ConfigError{Msg: fmt.Sprintf("decode: %v", err)}
	}

	return raw, nil
}

func validate(doc map[string]any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := sch.ValidateInterface(doc); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return home + strings.TrimPrefix(p, "~")
}
