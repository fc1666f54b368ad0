package domain

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"tchat/errors"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("nowhitespace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})
	return v
}

// Username carries the naming policy: 3 to 20 characters, no whitespace.
type Username struct {
	Name string `validate:"required,min=3,max=20,nowhitespace"`
}

func ValidateName(name string) error {
	if err := validate.Struct(Username{Name: name}); err != nil {
		return fmt.Errorf("%w: %q", errors.ErrInvalidName, name)
	}
	return nil
}

var nameWords = []string{
	"dark", "cyber", "acid", "hex", "null", "void", "byte", "neo", "max",
	"zed", "fox", "ace", "dex", "arc", "zen", "wolf", "lynx", "hawk",
	"echo", "nova", "ash", "sol", "mint", "jade", "ruby", "axel", "rex",
	"tux", "blaze", "storm", "ghost", "frost", "steel", "chrome", "sigma",
}

// GenerateName returns a random name that always satisfies ValidateName.
// It is used for anonymous sessions whose transport supplied no name.
func GenerateName() string {
	return nameWords[rand.IntN(len(nameWords))] + strconv.Itoa(rand.IntN(900)+100)
}
