package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
)

func TestEncode_OmitsFalseAndShortensNames(t *testing.T) {
	rec := &models.ConsentRecord{
		Consents:    models.ConsentState{"necessary": true, "measurement": false, "marketing": true},
		ConsentInfo: models.ConsentInfo{Time: 1234567890},
	}

	got := Encode(rec)

	assert.Equal(t, "c.marketing:1,c.necessary:1,i.t:1234567890", got)
	assert.NotContains(t, got, "measurement")
	assert.NotContains(t, got, ":0")
}

func TestEncode_Nil(t *testing.T) {
	assert.Equal(t, "", Encode(nil))
}

func TestRoundTrip_StandardAndCustomCategories(t *testing.T) {
	cases := []struct {
		name     string
		consents models.ConsentState
	}{
		{"all false", models.ConsentState{}},
		{"all true", models.ConsentState{
			"necessary": true, "functionality": true, "marketing": true, "measurement": true, "experience": true,
		}},
		{"mixed", models.ConsentState{"necessary": true, "marketing": true, "measurement": false}},
		{"custom kept", models.ConsentState{"necessary": true, "ab_testing": true, "vendor:x,y": true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &models.ConsentRecord{
				Consents: tc.consents,
				ConsentInfo: models.ConsentInfo{
					Time:             1700000000000,
					ID:               "cns_1",
					SubjectID:        "sub_1",
					ExternalID:       "user:42,eu",
					IdentityProvider: "auth0",
					Identified:       true,
					Type:             "cookie_banner",
				},
			}

			got := Decode(Encode(rec))
			require.NotNil(t, got)

			for _, c := range models.StandardCategories {
				want := tc.consents[c]
				if c == models.CategoryNecessary {
					want = true
				}
				v, present := got.Consents[c]
				assert.True(t, present, "standard category %s must be explicit", c)
				assert.Equal(t, want, v, c)
			}
			for name, granted := range tc.consents {
				if granted && !models.IsStandardCategory(name) {
					assert.True(t, got.Consents[name], name)
				}
			}
			assert.Equal(t, rec.ConsentInfo, got.ConsentInfo)
		})
	}
}

func TestDecode_LegacyExplicitFalse(t *testing.T) {
	got := Decode("c.necessary:1,c.marketing:0,c.measurement:1,c.beta:0,i.t:42")
	require.NotNil(t, got)

	assert.False(t, got.Consents["marketing"])
	assert.True(t, got.Consents["measurement"])
	v, ok := got.Consents["beta"]
	assert.True(t, ok)
	assert.False(t, v)
	assert.Equal(t, int64(42), got.ConsentInfo.Time)
}

func TestDecode_CustomAbsentStaysAbsent(t *testing.T) {
	got := Decode("c.necessary:1,i.t:1")
	require.NotNil(t, got)
	_, ok := got.Consents["beta"]
	assert.False(t, ok)
	assert.Len(t, got.Consents, len(models.StandardCategories))
}

func TestDecode_NecessaryForced(t *testing.T) {
	got := Decode("c.marketing:1,i.t:1")
	require.NotNil(t, got)
	assert.True(t, got.Consents["necessary"])
}

func TestDecode_LongNamesAndLiterals(t *testing.T) {
	got := Decode("consents.marketing:true,consents.measurement:false,consentInfo.timestamp:1000,i.identified:true")
	require.NotNil(t, got)
	assert.True(t, got.Consents["marketing"])
	assert.False(t, got.Consents["measurement"])
	assert.Equal(t, int64(1000), got.ConsentInfo.Time)
	assert.True(t, got.ConsentInfo.Identified)
}

func TestDecode_ISOTime(t *testing.T) {
	got := Decode("c.necessary:1,i.t:2024-01-02T03:04:05Z")
	require.NotNil(t, got)
	assert.Equal(t, int64(1704164645000), got.ConsentInfo.Time)
}

func TestDecode_JSONCookie(t *testing.T) {
	got := Decode(`{"consents":{"necessary":true,"marketing":false,"beta":true},` +
		`"consentInfo":{"time":"2024-01-02T03:04:05.5Z","subjectId":"sub_9","identified":true}}`)
	require.NotNil(t, got)

	assert.True(t, got.Consents["beta"])
	assert.False(t, got.Consents["marketing"])
	assert.False(t, got.Consents["experience"])
	assert.Equal(t, "sub_9", got.ConsentInfo.SubjectID)
	assert.True(t, got.ConsentInfo.Identified)
	assert.Equal(t, int64(1704164645500), got.ConsentInfo.Time)
}

func TestDecode_Garbage(t *testing.T) {
	for _, in := range []string{"", "   ", "garbage", "x:y,z", "{not json", "c.marketing:maybe", "i.t:soon"} {
		assert.Nil(t, Decode(in), "%q", in)
	}
}

func TestDecode_TruncatedKeepsWhatParses(t *testing.T) {
	full := Encode(&models.ConsentRecord{
		Consents:    models.ConsentState{"necessary": true, "marketing": true},
		ConsentInfo: models.ConsentInfo{Time: 99, SubjectID: "sub_1"},
	})
	cut := full[:strings.Index(full, "i.t")+2]

	got := Decode(cut)
	require.NotNil(t, got)
	assert.True(t, got.Consents["marketing"])
	assert.Zero(t, got.ConsentInfo.Time)
}

func TestUnescape_InvalidKeptRaw(t *testing.T) {
	assert.Equal(t, "100%", unescape("100%"))
	assert.Equal(t, "a,b:c%", unescape(escape("a,b:c%")))
}
