package template

import (
	"testing"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestRender_SubstitutesBoundKeys(t *testing.T) {
	vctx := models.NewVariableContext()
	vctx.Set("contact.name", "Ana")

	result := Render("Hi {{contact.name}}", vctx)

	assert.Equal(t, "Hi Ana", result)
}

func TestRender_MissingKeyRendersEmpty(t *testing.T) {
	vctx := models.NewVariableContext()

	result := Render("Hi {{contact.name}}", vctx)

	assert.Equal(t, "Hi ", result)
}

func TestRender_NonStringValues(t *testing.T) {
	vctx := models.NewVariableContext()
	vctx.Set("contact.age", 42)

	result := Render("Age: {{contact.age}}", vctx)

	assert.Equal(t, "Age: 42", result)
}

func TestRender_WhitespaceInsideToken(t *testing.T) {
	vctx := models.NewVariableContext()
	vctx.Set("contact.name", "Bruno")

	result := Render("Hi {{ contact.name }}", vctx)

	assert.Equal(t, "Hi Bruno", result)
}

func TestRender_NoTokensPassesThrough(t *testing.T) {
	vctx := models.NewVariableContext()

	result := Render("plain text", vctx)

	assert.Equal(t, "plain text", result)
}

func TestKeys(t *testing.T) {
	keys := Keys("{{contact.name}} bought {{order.item}}")

	assert.Equal(t, []string{"contact.name", "order.item"}, keys)
	assert.Nil(t, Keys("no tokens here"))
}
