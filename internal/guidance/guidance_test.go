package guidance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstructions_HeadingsListsAndParagraphs(t *testing.T) {
	p := NewParser()

	got := p.Instructions(`# Recovery plan

The migration is stuck on the users table.

## Steps

- Pin the dependency to v2
- Re-run the migration
- Verify the **users** index exists
`)

	assert.Equal(t, []string{
		"# Recovery plan",
		"The migration is stuck on the users table.",
		"# Steps",
		"Pin the dependency to v2",
		"Re-run the migration",
		"Verify the users index exists",
	}, got)
}

func TestInstructions_Empty(t *testing.T) {
	p := NewParser()
	assert.Nil(t, p.Instructions(""))
	assert.Nil(t, p.Instructions("   \n\t  "))
}

func TestInstructions_InlineFormattingStripped(t *testing.T) {
	p := NewParser()
	got := p.Instructions("Use `go test -run TestUsers` *before* pushing.")
	assert.Equal(t, []string{"Use go test -run TestUsers before pushing."}, got)
}

func TestInstructions_SoftWrapJoinsLines(t *testing.T) {
	p := NewParser()
	got := p.Instructions("The session keeps editing\nthe same file.")
	assert.Equal(t, []string{"The session keeps editing the same file."}, got)
}

func TestInstructions_ListItemKeepsFirstBlockOnly(t *testing.T) {
	p := NewParser()
	got := p.Instructions(`- Outer step
  - Inner detail
- Second step`)
	assert.Equal(t, []string{"Outer step", "Second step"}, got)
}

func TestRender(t *testing.T) {
	p := NewParser()

	got := p.Render("## Fix\n- Pin the dependency to v2\n- Re-run the migration")
	assert.Equal(t, "# Fix\nPin the dependency to v2\nRe-run the migration", got)

	assert.Empty(t, p.Render(""))
}
