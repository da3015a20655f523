package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcline/qcline/pkg/models"
)

func TestNew(t *testing.T) {
	t.Parallel()

	reg, err := New()
	require.NoError(t, err)

	assert.Equal(t, []string{"forming", "accumulation", "packaging", "dispatch"}, reg.Names())
}

func TestRegistry_Process(t *testing.T) {
	t.Parallel()

	reg, err := New()
	require.NoError(t, err)

	def, ok := reg.Process("forming")
	require.True(t, ok)
	assert.Equal(t, "forming", def.Name)
	assert.Equal(t, []string{
		"shell_diameter",
		"sample_weight",
		"stuffing_diameter",
		"stuffing_length",
		"mince_contamination",
		"hanging_quality",
	}, def.StepKeys())

	_, ok = reg.Process("unknown")
	assert.False(t, ok)
}

func TestRegistry_StepFlags(t *testing.T) {
	t.Parallel()

	reg, err := New()
	require.NoError(t, err)

	accumulation, ok := reg.Process("accumulation")
	require.True(t, ok)

	wrinkling, _, ok := accumulation.StepByKey("wrinkling")
	require.True(t, ok)
	assert.True(t, wrinkling.PhotoAlways)
	assert.False(t, wrinkling.PhotoOnDefect)

	organoleptics, _, ok := accumulation.StepByKey("organoleptics")
	require.True(t, ok)
	assert.True(t, organoleptics.CommentOnDefect)
	assert.NotEmpty(t, organoleptics.CommentPrompt)

	packaging, ok := reg.Process("packaging")
	require.True(t, ok)

	gasMixture, _, ok := packaging.StepByKey("gas_mixture")
	require.True(t, ok)
	assert.False(t, gasMixture.PhotoAlways)
	assert.False(t, gasMixture.PhotoOnDefect)
}

func TestStepDescriptor_ChoiceValue(t *testing.T) {
	t.Parallel()

	reg, err := New()
	require.NoError(t, err)

	forming, _ := reg.Process("forming")
	step, _, ok := forming.StepByKey("mince_contamination")
	require.True(t, ok)

	value, ok := step.ChoiceValue("defect")
	assert.True(t, ok)
	assert.Equal(t, "defect", value)

	// Labels resolve to their canonical value.
	value, ok = step.ChoiceValue("OK")
	assert.True(t, ok)
	assert.Equal(t, "norm", value)

	_, ok = step.ChoiceValue("maybe")
	assert.False(t, ok)
}

func TestIsDefect(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDefect("mince_contamination", "defect"))
	assert.False(t, IsDefect("mince_contamination", "norm"))

	// Inverted classifiers: the "positive" value is the deviation.
	assert.True(t, IsDefect("print_match", "present"))
	assert.False(t, IsDefect("print_match", "absent"))
	assert.True(t, IsDefect("package_integrity", "yes"))
	assert.True(t, IsDefect("inserts_check", "not_ok"))

	// Wrinkling is graded, never classified as a defect.
	assert.False(t, IsDefect("wrinkling", "major"))

	// Unknown steps never classify.
	assert.False(t, IsDefect("nonexistent", "defect"))
}

func TestProcessDefinitions_PhotoFlagsMutuallyExclusive(t *testing.T) {
	t.Parallel()

	for _, def := range processDefinitions() {
		for i := range def.Steps {
			step := &def.Steps[i]
			assert.False(t, step.PhotoAlways && step.PhotoOnDefect,
				"process %s step %s sets both photo flags", def.Name, step.Key)

			if step.Kind == models.ValueKindChoice {
				assert.NotEmpty(t, step.Choices, "process %s step %s has no choices", def.Name, step.Key)
			}
		}
	}
}
