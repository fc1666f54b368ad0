package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	req := require.New(t)

	english := DetectLanguage("The children are playing in the garden while their parents prepare dinner in the kitchen")
	french := DetectLanguage("Les enfants jouent dans le jardin pendant que leurs parents préparent le dîner dans la cuisine")

	req.Equal("en", english)
	req.Equal("fr", french)
	req.Empty(DetectLanguage("   "))
}

func TestDetectLanguage_Matches_Embedded_Dictionaries(t *testing.T) {
	req := require.New(t)
	data, err := NewEmbeddedLoader().LoadAll(DefaultCensoredDir)
	req.NoError(err)

	// Every shipped dictionary is named after the code the detector returns
	req.Contains(data.Languages, DetectLanguage("I really do not understand why everybody is always late on Monday mornings"))
	req.Contains(data.Languages, DetectLanguage("Je ne comprends vraiment pas pourquoi tout le monde est toujours en retard le lundi matin"))
}
