package localization_test

import (
	"testing"
	"testing/fstest"

	"nearprop/chat/internal/localization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedLocales(t *testing.T) {
	l, err := localization.New()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"en", "hi"}, l.Languages())
	assert.Equal(t, "Please log in to continue.", l.GetString("en", "error.login_required"))
	assert.Equal(t, "ऑफ़लाइन", l.GetString("hi", "status.disconnected"))
}

func TestGetString_Fallbacks(t *testing.T) {
	l, err := localization.NewFromFS(fstest.MapFS{
		"en.json":   {Data: []byte(`{"greeting":"Hello","only.en":"English"}`)},
		"hi.json":   {Data: []byte(`{"greeting":"नमस्ते"}`)},
		"notes.txt": {Data: []byte(`ignored`)},
	})
	require.NoError(t, err)

	assert.Equal(t, "नमस्ते", l.GetString("hi", "greeting"))
	assert.Equal(t, "English", l.GetString("hi", "only.en"))
	assert.Equal(t, "English", l.GetString("fr", "only.en"))
	assert.Equal(t, "missing.key", l.GetString("en", "missing.key"))
}

func TestNewFromFS_BadJSON(t *testing.T) {
	_, err := localization.NewFromFS(fstest.MapFS{"en.json": {Data: []byte(`{`)}})
	assert.Error(t, err)
}
