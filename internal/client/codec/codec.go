// Package codec converts consent records to and from the compact cookie form.
//
// A record is written as flat "path:value" pairs separated by commas, e.g.
//
//	c.marketing:1,c.necessary:1,i.t:1700000000000,i.subjectId:sub_1
//
// Field names on the path are shortened through a fixed dictionary, true is
// written as 1 and false is omitted. The decoder also understands the older
// forms that spelled false as :0 and the JSON cookie format.
package codec

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
)

const (
	pairSep = ","
	kvSep   = ":"
	pathSep = "."
)

// Path segments of the long form.
const (
	fieldConsents         = "consents"
	fieldConsentInfo      = "consentInfo"
	fieldTime             = "time"
	fieldTimestamp        = "timestamp"
	fieldID               = "id"
	fieldSubjectID        = "subjectId"
	fieldExternalID       = "externalId"
	fieldIdentityProvider = "identityProvider"
	fieldIdentified       = "identified"
	fieldType             = "type"
)

var shortNames = map[string]string{
	fieldConsents:    "c",
	fieldConsentInfo: "i",
	fieldTime:        "t",
	fieldTimestamp:   "ts",
}

var longNames = func() map[string]string {
	m := make(map[string]string, len(shortNames))
	for long, short := range shortNames {
		m[short] = long
	}
	return m
}()

func shorten(segment string) string {
	if s, ok := shortNames[segment]; ok {
		return s
	}
	return segment
}

func expand(segment string) string {
	if l, ok := longNames[segment]; ok {
		return l
	}
	return segment
}

func joinPath(segments ...string) string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = shorten(s)
	}
	return strings.Join(out, pathSep)
}

// Encode returns the compact form of r. A nil record encodes to "".
func Encode(r *models.ConsentRecord) string {
	if r == nil {
		return ""
	}

	var pairs []string
	add := func(path, value string) {
		pairs = append(pairs, path+kvSep+value)
	}

	categories := make([]string, 0, len(r.Consents))
	for name, granted := range r.Consents {
		if granted {
			categories = append(categories, name)
		}
	}
	slices.Sort(categories)
	for _, name := range categories {
		add(joinPath(fieldConsents, escape(name)), "1")
	}

	info := r.ConsentInfo
	add(joinPath(fieldConsentInfo, fieldTime), strconv.FormatInt(info.Time, 10))

	strField := func(name, value string) {
		if value != "" {
			add(joinPath(fieldConsentInfo, name), escape(value))
		}
	}
	strField(fieldID, info.ID)
	strField(fieldSubjectID, info.SubjectID)
	strField(fieldExternalID, info.ExternalID)
	strField(fieldIdentityProvider, info.IdentityProvider)
	if info.Identified {
		add(joinPath(fieldConsentInfo, fieldIdentified), "1")
	}
	strField(fieldType, info.Type)

	return strings.Join(pairs, pairSep)
}

// Decode parses s in any supported form. It returns nil when s is empty or
// carries no recognisable field; malformed pairs are skipped.
func Decode(s string) *models.ConsentRecord {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "{") {
		return decodeJSON(s)
	}

	var pairs [][2]string
	for _, raw := range strings.Split(s, pairSep) {
		key, value, ok := strings.Cut(raw, kvSep)
		if !ok {
			continue
		}
		section, field, _ := strings.Cut(strings.TrimSpace(key), pathSep)
		section = expand(section)
		if section == fieldConsentInfo {
			field = expand(field)
		}
		pairs = append(pairs, [2]string{section + pathSep + field, unescape(value)})
	}
	return assemble(pairs)
}

// assemble builds a record from long-form dotted paths.
func assemble(pairs [][2]string) *models.ConsentRecord {
	rec := &models.ConsentRecord{Consents: models.ConsentState{}}
	recognised := false

	for _, p := range pairs {
		path, value := p[0], p[1]
		section, field, ok := strings.Cut(path, pathSep)
		if !ok || field == "" {
			continue
		}

		switch section {
		case fieldConsents:
			b, ok := parseBool(value)
			if !ok {
				continue
			}
			rec.Consents[unescape(field)] = b
			recognised = true

		case fieldConsentInfo:
			if applyInfo(&rec.ConsentInfo, field, value) {
				recognised = true
			}
		}
	}

	if !recognised {
		return nil
	}
	rec.Consents = rec.Consents.Normalize()
	return rec
}

func applyInfo(info *models.ConsentInfo, field, value string) bool {
	switch field {
	case fieldTime, fieldTimestamp:
		ms, ok := parseTime(value)
		if !ok {
			return false
		}
		info.Time = ms
	case fieldID:
		info.ID = value
	case fieldSubjectID:
		info.SubjectID = value
	case fieldExternalID:
		info.ExternalID = value
	case fieldIdentityProvider:
		info.IdentityProvider = value
	case fieldIdentified:
		b, ok := parseBool(value)
		if !ok {
			return false
		}
		info.Identified = b
	case fieldType:
		info.Type = value
	default:
		return false
	}
	return true
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true":
		return true, true
	case "0", "false":
		return false, true
	}
	return false, false
}

// parseTime accepts epoch milliseconds or an RFC 3339 timestamp.
func parseTime(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return ms, true
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UnixMilli(), true
	}
	return 0, false
}

// decodeJSON reads the JSON cookie format by flattening it into the same
// dotted paths the compact form uses.
func decodeJSON(s string) *models.ConsentRecord {
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil
	}

	var pairs [][2]string
	for _, section := range []string{fieldConsents, fieldConsentInfo} {
		fields, ok := doc[section].(map[string]any)
		if !ok {
			continue
		}
		for name, v := range fields {
			value, ok := scalar(v)
			if !ok {
				continue
			}
			// escaped so assemble can unescape category names uniformly
			if section == fieldConsents {
				name = escape(name)
			}
			pairs = append(pairs, [2]string{section + pathSep + name, value})
		}
	}
	return assemble(pairs)
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case string:
		return x, true
	}
	return "", false
}
