package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/mailtext/internal/address"
	"github.com/felo/mailtext/internal/charset"
)

func TestFormatters(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(slog.NewJSONHandler(&buf, nil)))

	logger.Info("decoded",
		"charset", charset.Name(""),
		"guessed", charset.MS932,
		"from", address.Address{Email: "a@example.com", Name: "A"},
		"error", errors.New("boom"),
		"raw", FmtValue([]string{"x", "y"}),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "none", rec["charset"])
	assert.Equal(t, "MS932", rec["guessed"])
	assert.Equal(t, map[string]any{"email": "a@example.com", "name": "A"}, rec["from"])
	assert.Equal(t, "[x y]", rec["raw"])
	require.IsType(t, map[string]any{}, rec["error"])
	assert.Equal(t, "boom", rec["error"].(map[string]any)["message"])
}

func TestOr(t *testing.T) {
	assert.Same(t, Noop, Or(nil))
	assert.Same(t, Def, Or(Def))
}

func TestNew(t *testing.T) {
	assert.Same(t, Dev, New(true))
	assert.Same(t, Def, New(false))
}

func TestNoop(t *testing.T) {
	assert.False(t, Noop.Enabled(t.Context(), slog.LevelError))
	Noop.With("k", "v").WithGroup("g").Error("dropped")
}
