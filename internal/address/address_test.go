package address

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/mailtext/internal/charset"
	"github.com/felo/mailtext/internal/decoder"
)

func newRepairer() *Repairer {
	reg := charset.Default()
	return NewRepairer(decoder.NewHeaderDecoder(reg), reg)
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "jane@example.com", Address{Email: "jane@example.com"}.String())
	assert.Equal(t, `"Doe, Jane" <jane@example.com>`, Address{Email: "jane@example.com", Name: "Doe, Jane"}.String())
	assert.Equal(t, `"The \"Boss\"" <boss@example.com>`, Address{Email: "boss@example.com", Name: `The "Boss"`}.String())
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{"simple", []string{"a@x.com, b@x.com"}, []string{"a@x.com", "b@x.com"}},
		{"comma in quotes", []string{`"Doe, Jane" <jane@x.com>, bob@x.com`}, []string{`"Doe, Jane" <jane@x.com>`, "bob@x.com"}},
		{"several commas in quotes", []string{`"a, b, c" <abc@x.com>`}, []string{`"a, b, c" <abc@x.com>`}},
		{"escaped quote", []string{`"say \"hi, there\"" <hi@x.com>, z@x.com`}, []string{`"say \"hi, there\"" <hi@x.com>`, "z@x.com"}},
		{"blank fragments dropped", []string{"a@x.com,, ,b@x.com,"}, []string{"a@x.com", "b@x.com"}},
		{"several values", []string{"a@x.com", "b@x.com, c@x.com"}, []string{"a@x.com", "b@x.com", "c@x.com"}},
		{"unterminated quote", []string{`"open, a@x.com`}, []string{`"open, a@x.com`}},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.values))
		})
	}
}

func TestFromRaw(t *testing.T) {
	r := newRepairer()

	tests := []struct {
		raw  string
		want Address
	}{
		{"jane@example.com", Address{Email: "jane@example.com"}},
		{"<jane@example.com>", Address{Email: "jane@example.com"}},
		{"Jane Doe <jane@example.com>", Address{Email: "jane@example.com", Name: "Jane Doe"}},
		{`"Doe, Jane" <jane@example.com>`, Address{Email: "jane@example.com", Name: "Doe, Jane"}},
		{`"The \"Boss\"" <boss@example.com>`, Address{Email: "boss@example.com", Name: `The "Boss"`}},
		{"=?UTF-8?B?44OG44K544OI?= <test@example.com>", Address{Email: "test@example.com", Name: "テスト"}},
		{"=?UTF-8?Q?A?=\r\n =?UTF-8?Q?B?= <ab@example.com>", Address{Email: "ab@example.com", Name: "AB"}},
		{"=?ISO-2022-JP?B?GyRCJUYlOSVIGyhC?= < spaced@example.com >", Address{Email: "spaced@example.com", Name: "テスト"}},
		{"=?UTF-8?B?U2F5ICJoaSI=?= <a@example.com>", Address{Email: "a@example.com", Name: `Say "hi"`}},
		{`Foo" <b@example.com>`, Address{Email: "b@example.com", Name: `Foo"`}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := r.FromRaw(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromRaw_Invalid(t *testing.T) {
	r := newRepairer()

	for _, raw := range []string{"not an address", "Name <>", `"Only Name"`} {
		_, err := r.FromRaw(raw)
		require.Error(t, err, raw)
		assert.True(t, IsFormatError(err), raw)
	}
}

// TestRepair_CountMismatch tests that a host list split on a quoted comma is rebuilt from raw
func TestRepair_CountMismatch(t *testing.T) {
	r := newRepairer()

	host := []Address{
		{Email: "", Name: "Doe"},
		{Email: "jane@example.com", Name: "Jane"},
		{Email: "bob@example.com"},
	}
	raw := []string{`"Doe, Jane" <jane@example.com>, bob@example.com`}

	got, err := r.Repair(host, raw)
	require.NoError(t, err)

	want := []Address{
		{Email: "jane@example.com", Name: "Doe, Jane"},
		{Email: "bob@example.com"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Repair() mismatch (-want +got):\n%s", diff)
	}
}

func TestRepair_HostFailed(t *testing.T) {
	got, err := newRepairer().Repair(nil, []string{"=?Shift_JIS?B?g2WDWINn?= <sjis@example.com>"})
	require.NoError(t, err)
	assert.Equal(t, []Address{{Email: "sjis@example.com", Name: "テスト"}}, got)
}

// TestRepair_TrustsHost tests that non-risky entries are taken from the host list
func TestRepair_TrustsHost(t *testing.T) {
	r := newRepairer()

	host := []Address{
		{Email: "jane@example.com", Name: "Jane From Host"},
		{Email: "bob@example.com", Name: "Bob"},
	}
	raw := []string{"Jane Raw <jane@example.com>, Bob <bob@example.com>"}

	got, err := r.Repair(host, raw)
	require.NoError(t, err)
	if diff := cmp.Diff(host, got); diff != "" {
		t.Errorf("Repair() mismatch (-want +got):\n%s", diff)
	}
}

// TestRepair_RiskyEntries tests that folded UTF-8 and remapped charsets are rebuilt
func TestRepair_RiskyEntries(t *testing.T) {
	r := newRepairer()

	host := []Address{
		{Email: "a@example.com", Name: "garbled"},
		{Email: "b@example.com", Name: "mojibake"},
		{Email: "c@example.com", Name: "Carol"},
	}
	raw := []string{
		"=?UTF-8?B?44E=?=\r\n =?UTF-8?B?gg==?= <a@example.com>",
		"=?ISO-2022-JP?B?GyRCJUYlOSVIGyhC?= <b@example.com>",
		"Carol Raw <c@example.com>",
	}

	got, err := r.Repair(host, raw)
	require.NoError(t, err)

	want := []Address{
		{Email: "a@example.com", Name: "あ"},
		{Email: "b@example.com", Name: "テスト"},
		{Email: "c@example.com", Name: "Carol"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Repair() mismatch (-want +got):\n%s", diff)
	}
}

func TestRepair_FormatError(t *testing.T) {
	_, err := newRepairer().Repair(nil, []string{"good@example.com, not an address"})
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

func TestRepair_Empty(t *testing.T) {
	got, err := newRepairer().Repair(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TestRepair_Idempotent tests that repairing already repaired output changes nothing
func TestRepair_Idempotent(t *testing.T) {
	r := newRepairer()

	raw := []string{`"Doe, Jane" <jane@example.com>, =?UTF-8?B?44OG44K544OI?= <test@example.com>, bob@example.com, "The \"Boss\"" <boss@example.com>`}
	first, err := r.Repair(nil, raw)
	require.NoError(t, err)
	require.Len(t, first, 4)

	again := make([]string, len(first))
	for i, a := range first {
		again[i] = a.String()
	}

	fromHost, err := r.Repair(first, again)
	require.NoError(t, err)
	if diff := cmp.Diff(first, fromHost); diff != "" {
		t.Errorf("Repair() with host mismatch (-want +got):\n%s", diff)
	}

	fromRaw, err := r.Repair(nil, again)
	require.NoError(t, err)
	if diff := cmp.Diff(first, fromRaw); diff != "" {
		t.Errorf("Repair() from raw mismatch (-want +got):\n%s", diff)
	}
}
