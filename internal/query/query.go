// Package query compiles the search-box query language (spec §4.5.3)
// into a SQL WHERE clause, matching original_source/copyparty/u2idx.py's
// hand-rolled lexer token for token: every key/operator/value is read
// off the front of the query string and transliterated straight into
// SQL, so the caller's own parenthesisation and boolean keywords pass
// through unchanged. A '*' is a LIKE wildcard only as the first or last
// character of a value; a '*' in the middle is bound literally.
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// VtopPlaceholder is a typed stand-in for the original's "\nrd" sentinel
// value: a "path" key compares against the volume's mount point plus
// its relative directory, which isn't known until the query runs
// against a specific volume. u2idx substitutes the real value per
// volume before binding args.
type VtopPlaceholder struct{}

// Compiled is a parsed search query, ready to be bound to a volume by
// substituting VtopPlaceholder args and turned into a squirrel
// Sqlizer for the WHERE clause.
type Compiled struct {
	where  string
	args   []any
	HaveUp bool
	HaveMt bool
}

// Args returns the compiled query's placeholder arguments, in the
// vtop-unresolved form: entries equal to VtopPlaceholder{} must be
// replaced by the caller (with "<vtop>/") before binding.
func (c *Compiled) Args() []any { return append([]any(nil), c.args...) }

// Sqlizer binds args (already vtop-resolved) and returns the WHERE
// expression as a squirrel.Sqlizer, or nil if the query was empty.
func (c *Compiled) Sqlizer(args []any) sq.Sqlizer {
	if c.where == "" {
		return nil
	}
	return sq.Expr(c.where, args...)
}

var (
	kwKey = []string{"(", ")", "and ", "or ", "not "}
	kwVal = []string{"==", "=", "!=", ">", ">=", "<", "<=", "like "}

	ptnMt  = regexp.MustCompile(`^\.?[a-z_-]+$`)
	ptnLc  = regexp.MustCompile(` (mt\.v) ([=<!>]+) \? \) $`)
	ptnLcv = regexp.MustCompile(`[a-zA-Z]`)
	ptnTz  = regexp.MustCompile(`[tzTZ, ]+`)

	dateLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02 15",
		"2006-01-02",
		"2006-01",
		"2006",
	}
)

// Compile parses a raw search query into a WHERE clause plus ordered
// args. It returns an error only for a key token that isn't one of
// the well-known fields ("size", "date", "path", "name", "tags") and
// doesn't match the custom-tag pattern.
func Compile(raw string) (*Compiled, error) {
	var q strings.Builder
	var va []any

	haveUp := false
	haveMt := false
	isKey := true
	isSize := false
	isDate := false
	fieldEnd := ""

	kws := append(append([]string{}, kwKey...), kwVal...)

	uq := raw
	for {
		uq = strings.TrimSpace(uq)
		if uq == "" {
			break
		}

		matched := false
		for _, kw := range kws {
			if strings.HasPrefix(uq, kw) {
				isKey = containsStr(kwKey, kw)
				uq = uq[len(kw):]
				q.WriteString(kw)
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		var v string
		v, uq = scanValue(uq)

		if isKey {
			isKey = false

			switch {
			case v == "size":
				v = "up.sz"
				isSize = true
				haveUp = true
			case v == "date":
				v = "up.mt"
				isDate = true
				haveUp = true
			case v == "path":
				v = "trim(?||up.rd,'/')"
				va = append(va, VtopPlaceholder{})
				haveUp = true
			case v == "name":
				v = "up.fn"
				haveUp = true
			case v == "tags" || ptnMt.MatchString(v):
				haveMt = true
				fieldEnd = ") "
				vq := "mt.v"
				if v != "tags" {
					vq = fmt.Sprintf("+mt.k = '%s' and mt.v", v)
				}
				v = "exists(select 1 from mt where mt.w = mtw and " + vq
			default:
				return nil, fmt.Errorf("invalid key %q", v)
			}

			q.WriteString(v)
			q.WriteString(" ")
			continue
		}

		head := ""
		tail := ""
		var argVal any = v

		switch {
		case isDate:
			isDate = false
			argVal = parseDate(v)
		case isSize:
			isSize = false
			argVal = parseSize(v)
		default:
			if strings.HasPrefix(v, "*") {
				head = "'%'||"
				v = v[1:]
			}
			if strings.HasSuffix(v, "*") {
				tail = "||'%'"
				v = v[:len(v)-1]
			}
			argVal = v
		}

		q.WriteString(fmt.Sprintf(" %s?%s ", head, tail))
		va = append(va, argVal)
		isKey = true

		if fieldEnd != "" {
			q.WriteString(fieldEnd)
			fieldEnd = ""
		}

		applyLowercaseTagRewrite(&q, &va, argVal)
	}

	return &Compiled{where: q.String(), args: va, HaveUp: haveUp, HaveMt: haveMt}, nil
}

func containsStr(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// scanValue reads one value token off the front of uq: a double-quoted
// string (with backslash-escaped quotes merged across the split), or
// a bareword up to the next space.
func scanValue(uq string) (v, rest string) {
	if strings.HasPrefix(uq, `"`) {
		parts := strings.SplitN(uq[1:], `"`, 2)
		v, rest = parts[0], ""
		if len(parts) == 2 {
			rest = parts[1]
		}
		for strings.HasSuffix(v, `\`) {
			more := strings.SplitN(rest, `"`, 2)
			v2 := more[0]
			rest = ""
			if len(more) == 2 {
				rest = more[1]
			}
			v = v[:len(v)-1] + `"` + v2
		}
		return v, strings.TrimSpace(rest)
	}

	parts := strings.SplitN(uq+" ", " ", 2)
	v = strings.ReplaceAll(parts[0], `\"`, `"`)
	rest = parts[1]
	return v, rest
}

// parseDate mirrors u2idx.py's strptime cascade, trying progressively
// coarser layouts and returning the matched layout's UTC unix time;
// the original value passes through unparsed if none of the layouts
// match (sqlite will then compare as text).
func parseDate(v string) any {
	cleaned := strings.TrimSpace(ptnTz.ReplaceAllString(v, " "))
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, cleaned, time.UTC); err == nil {
			return t.Unix()
		}
	}
	return v
}

// parseSize mirrors "int(float(v) * 1024 * 1024)": a size key's value
// is given in megabytes and stored in bytes.
func parseSize(v string) any {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	return int64(f * 1024 * 1024)
}

// applyLowercaseTagRewrite implements the original's case-folding
// post-order rewrite: a just-closed custom-tag comparison against
// mt.v is rewritten to fold both sides to lowercase (using LIKE in
// place of = so sqlite's case-insensitive collation isn't required),
// whenever the literal value contains a letter. Only string values
// (custom-tag comparisons) ever match; date/size values never produce
// the " mt.v <op> ? ) " suffix this looks for.
func applyLowercaseTagRewrite(q *strings.Builder, va *[]any, argVal any) {
	v, ok := argVal.(string)
	if !ok {
		return
	}

	s := q.String()
	loc := ptnLc.FindStringSubmatchIndex(s)
	if loc == nil || !ptnLcv.MatchString(v) {
		return
	}

	(*va)[len(*va)-1] = strings.ToLower(v)

	field := s[loc[2]:loc[3]]
	oper := s[loc[4]:loc[5]]

	q.Reset()
	q.WriteString(s[:loc[0]])
	if oper == "=" || oper == "==" {
		fmt.Fprintf(q, " %s like ? ) ", field)
	} else {
		fmt.Fprintf(q, " lower(%s) %s ? ) ", field, oper)
	}
}
