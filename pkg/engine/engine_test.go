package engine

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcline/qcline/pkg/log"
	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
	"github.com/qcline/qcline/pkg/persistence/memory"
	"github.com/qcline/qcline/pkg/registry"
	"github.com/qcline/qcline/pkg/token"
)

const testOperator int64 = 100

func newTestEngine(t *testing.T) (*Engine, persistence.Persistence) {
	t.Helper()

	store := memory.NewPersistence(log.WithModule("test"))
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	reg, err := registry.New()
	require.NoError(t, err)

	tokens := token.NewService(store.Tokens(), log.WithModule("test"))

	eng := New(reg, store, tokens, log.WithModule("test"), WithClock(clock.NewMock()))

	err = store.Operators().Save(context.Background(), &models.Operator{
		ID:        testOperator,
		FullName:  "Test Operator",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	return eng, store
}

func startForming(t *testing.T, eng *Engine) {
	t.Helper()

	_, err := eng.Start(context.Background(), testOperator, "forming", models.Correlation{})
	require.NoError(t, err)
}

func answer(t *testing.T, eng *Engine, process, step, value string) Instruction {
	t.Helper()

	ctx := context.Background()

	_, err := eng.SelectStep(ctx, testOperator, process, step)
	require.NoError(t, err)

	instruction, err := eng.SubmitValue(ctx, testOperator, process, value)
	require.NoError(t, err)

	return instruction
}

func TestEngine_Start(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	ctx := context.Background()

	instruction, err := eng.Start(ctx, testOperator, "forming", models.Correlation{})
	require.NoError(t, err)

	menu, ok := instruction.(ShowMenu)
	require.True(t, ok)
	assert.Equal(t, "forming", menu.Process)
	assert.Len(t, menu.Items, 6)

	for _, item := range menu.Items {
		assert.False(t, item.Completed)
	}

	// Starting writes the initial draft.
	draft, err := store.Drafts().Load(ctx, testOperator, "forming")
	require.NoError(t, err)
	assert.Equal(t, registry.SchemaVersion, draft.SchemaVersion)
}

func TestEngine_Start_UnknownProcess(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), testOperator, "bottling", models.Correlation{})
	assert.ErrorIs(t, err, ErrUnknownProcess)
}

func TestEngine_Start_UnregisteredOperator(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), 999, "forming", models.Correlation{})
	assert.ErrorIs(t, err, ErrOperatorNotRegistered)
}

func TestEngine_SubmitValue_NumericBoundsInclusive(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	startForming(t, eng)

	// shell_diameter accepts [1, 500].
	_, err := eng.SelectStep(ctx, testOperator, "forming", "shell_diameter")
	require.NoError(t, err)

	_, err = eng.SubmitValue(ctx, testOperator, "forming", "0.5")
	assert.True(t, IsValidationError(err))

	_, err = eng.SubmitValue(ctx, testOperator, "forming", "1")
	assert.NoError(t, err)

	_, err = eng.SelectStep(ctx, testOperator, "forming", "shell_diameter")
	require.NoError(t, err)

	_, err = eng.SubmitValue(ctx, testOperator, "forming", "500")
	assert.NoError(t, err)

	_, err = eng.SelectStep(ctx, testOperator, "forming", "shell_diameter")
	require.NoError(t, err)

	_, err = eng.SubmitValue(ctx, testOperator, "forming", "500.01")
	assert.True(t, IsValidationError(err))
}

func TestEngine_SubmitValue_CommaDecimal(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	startForming(t, eng)
	answer(t, eng, "forming", "sample_weight", "12,5")

	session, ok := eng.Session(testOperator, "forming")
	require.True(t, ok)
	assert.InDelta(t, 12.5, session.Values["sample_weight"], 1e-9)
}

func TestEngine_SubmitValue_RejectsNonNumber(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	startForming(t, eng)

	_, err := eng.SelectStep(ctx, testOperator, "forming", "shell_diameter")
	require.NoError(t, err)

	_, err = eng.SubmitValue(ctx, testOperator, "forming", "abc")
	assert.True(t, IsValidationError(err))

	// The failed submission leaves the step open for a retry.
	_, err = eng.SubmitValue(ctx, testOperator, "forming", "25")
	assert.NoError(t, err)
}

func TestEngine_SubmitValue_ChoiceByLabelAndValue(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	startForming(t, eng)
	answer(t, eng, "forming", "hanging_quality", "OK")

	session, ok := eng.Session(testOperator, "forming")
	require.True(t, ok)
	assert.Equal(t, "norm", session.Values["hanging_quality"])

	_, err := eng.SelectStep(ctx, testOperator, "forming", "hanging_quality")
	require.NoError(t, err)

	_, err = eng.SubmitValue(ctx, testOperator, "forming", "fine")
	assert.True(t, IsValidationError(err))
}

func TestEngine_SubmitValue_NoStepSelected(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	startForming(t, eng)

	_, err := eng.SubmitValue(context.Background(), testOperator, "forming", "42")
	assert.ErrorIs(t, err, ErrNoStepSelected)
}

func TestEngine_DefectRequiresPhoto(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	startForming(t, eng)

	instruction := answer(t, eng, "forming", "mince_contamination", "defect")

	prompt, ok := instruction.(ShowPrompt)
	require.True(t, ok)
	assert.Equal(t, "mince_contamination", prompt.Step)

	// Navigation and values are blocked while the requirement is open.
	_, err := eng.SelectStep(ctx, testOperator, "forming", "shell_diameter")
	assert.ErrorIs(t, err, ErrRequirementPending)

	_, err = eng.Finish(ctx, testOperator, "forming")
	assert.ErrorIs(t, err, ErrRequirementPending)

	instruction, err = eng.SubmitImage(ctx, testOperator, "forming", "forming/mince_contamination/a.jpg")
	require.NoError(t, err)

	_, ok = instruction.(ShowMenu)
	assert.True(t, ok)

	session, ok := eng.Session(testOperator, "forming")
	require.True(t, ok)
	assert.Equal(t, []string{"forming/mince_contamination/a.jpg"}, session.Photos["mince_contamination"])
	assert.False(t, session.Pending())
}

func TestEngine_NormChoiceNeedsNoPhoto(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	startForming(t, eng)

	instruction := answer(t, eng, "forming", "mince_contamination", "norm")

	_, ok := instruction.(ShowMenu)
	assert.True(t, ok)

	_, err := eng.SubmitImage(context.Background(), testOperator, "forming", "ref")
	assert.ErrorIs(t, err, ErrNoPhotoPending)
}

func TestEngine_PhotoAlways(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Start(ctx, testOperator, "accumulation", models.Correlation{})
	require.NoError(t, err)

	// wrinkling demands a photo for every grade, defect or not.
	instruction := answer(t, eng, "accumulation", "wrinkling", "absent")

	prompt, ok := instruction.(ShowPrompt)
	require.True(t, ok)
	assert.Equal(t, "wrinkling", prompt.Step)
}

func TestEngine_DefectRequiresComment(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Start(ctx, testOperator, "accumulation", models.Correlation{})
	require.NoError(t, err)

	instruction := answer(t, eng, "accumulation", "organoleptics", "defect")

	prompt, ok := instruction.(ShowPrompt)
	require.True(t, ok)
	assert.Equal(t, "organoleptics", prompt.Step)
	assert.Contains(t, prompt.Text, "organoleptic")

	_, err = eng.SubmitComment(ctx, testOperator, "accumulation", "   ")
	assert.True(t, IsValidationError(err))

	_, err = eng.SubmitComment(ctx, testOperator, "accumulation", "sour smell")
	require.NoError(t, err)

	session, ok := eng.Session(testOperator, "accumulation")
	require.True(t, ok)
	assert.Equal(t, "sour smell", session.Values["organoleptics_comment"])
}

func TestEngine_Finish(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Start(ctx, testOperator, "forming", models.Correlation{
		ContainerCode: "BOX-9",
		ItemCode:      "ITEM-1",
		SampleNumber:  2,
	})
	require.NoError(t, err)

	answer(t, eng, "forming", "sample_weight", "310")
	answer(t, eng, "forming", "shell_diameter", "22")
	answer(t, eng, "forming", "mince_contamination", "norm")

	record, err := eng.Finish(ctx, testOperator, "forming")
	require.NoError(t, err)

	// The headline follows chain order, not answer order.
	require.NotNil(t, record.HeadlineNumeric)
	assert.InDelta(t, 22, *record.HeadlineNumeric, 1e-9)

	assert.InDelta(t, 310, record.Values["sample_weight"].(float64), 1e-9)
	assert.Equal(t, "norm", record.Values["mince_contamination"])
	assert.Equal(t, "BOX-9", record.Values["container_code"])
	assert.Equal(t, "ITEM-1", record.Values["item_code"])
	assert.Equal(t, 2, record.Values["sample_number"])

	// Session and draft are gone.
	_, ok := eng.Session(testOperator, "forming")
	assert.False(t, ok)

	_, err = store.Drafts().Load(ctx, testOperator, "forming")
	assert.True(t, persistence.IsDraftNotFound(err))

	stored, err := store.Records().LastForProcess(ctx, testOperator, "forming")
	require.NoError(t, err)
	assert.Equal(t, record.ID, stored.ID)
}

func TestEngine_Finish_NoValues(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	startForming(t, eng)

	_, err := eng.Finish(context.Background(), testOperator, "forming")
	assert.ErrorIs(t, err, ErrNoValues)
}

func TestEngine_Finish_NoSession(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	_, err := eng.Finish(context.Background(), testOperator, "forming")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestEngine_Cancel_RevertsPendingValue(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	ctx := context.Background()

	startForming(t, eng)
	answer(t, eng, "forming", "mince_contamination", "defect")

	require.NoError(t, eng.Cancel(ctx, testOperator, "forming"))

	_, ok := eng.Session(testOperator, "forming")
	assert.False(t, ok)

	_, err := store.Drafts().Load(ctx, testOperator, "forming")
	assert.True(t, persistence.IsDraftNotFound(err))
}

func TestEngine_ResumeAcrossRestart(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	ctx := context.Background()

	startForming(t, eng)
	answer(t, eng, "forming", "shell_diameter", "22")

	// A second engine over the same store stands in for a restart.
	reg, err := registry.New()
	require.NoError(t, err)

	restarted := New(reg, store, token.NewService(store.Tokens(), log.WithModule("test")), log.WithModule("test"))

	instruction, found, err := restarted.Resume(ctx, testOperator, "forming")
	require.NoError(t, err)
	require.True(t, found)

	menu, ok := instruction.(ShowMenu)
	require.True(t, ok)

	completed := map[string]bool{}
	for _, item := range menu.Items {
		completed[item.Key] = item.Completed
	}

	assert.True(t, completed["shell_diameter"])
	assert.False(t, completed["sample_weight"])
}

func TestEngine_Resume_PendingPhotoSurvives(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	ctx := context.Background()

	startForming(t, eng)
	answer(t, eng, "forming", "mince_contamination", "defect")

	reg, err := registry.New()
	require.NoError(t, err)

	restarted := New(reg, store, token.NewService(store.Tokens(), log.WithModule("test")), log.WithModule("test"))

	instruction, found, err := restarted.Resume(ctx, testOperator, "forming")
	require.NoError(t, err)
	require.True(t, found)

	prompt, ok := instruction.(ShowPrompt)
	require.True(t, ok)
	assert.Equal(t, "mince_contamination", prompt.Step)

	// The requirement still gates completion after the restart.
	_, err = restarted.Finish(ctx, testOperator, "forming")
	assert.ErrorIs(t, err, ErrRequirementPending)
}

func TestEngine_Resume_NothingToResume(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	_, found, err := eng.Resume(context.Background(), testOperator, "forming")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEngine_Resume_StaleSchemaVersionDiscarded(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	ctx := context.Background()

	err := store.Drafts().Save(ctx, &models.Draft{
		OperatorID:    testOperator,
		Process:       "forming",
		SchemaVersion: registry.SchemaVersion + 1,
		Payload:       []byte(`{}`),
		UpdatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	_, found, err := eng.Resume(ctx, testOperator, "forming")
	require.NoError(t, err)
	assert.False(t, found)

	// The stale draft is deleted, not kept around.
	_, err = store.Drafts().Load(ctx, testOperator, "forming")
	assert.True(t, persistence.IsDraftNotFound(err))
}

func TestEngine_Resume_UndecodableDraftDiscarded(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	ctx := context.Background()

	err := store.Drafts().Save(ctx, &models.Draft{
		OperatorID:    testOperator,
		Process:       "forming",
		SchemaVersion: registry.SchemaVersion,
		Payload:       []byte(`{not json`),
		UpdatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	_, found, err := eng.Resume(ctx, testOperator, "forming")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.Drafts().Load(ctx, testOperator, "forming")
	assert.True(t, persistence.IsDraftNotFound(err))
}

func TestEngine_ContinuationRoundTrip(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Start(ctx, testOperator, "forming", models.Correlation{
		ContainerCode: "BOX-9",
		ItemCode:      "ITEM-1",
	})
	require.NoError(t, err)

	answer(t, eng, "forming", "shell_diameter", "22")

	_, err = eng.Finish(ctx, testOperator, "forming")
	require.NoError(t, err)

	tokenValue, itemCode, err := eng.ContinuationOffer(ctx, testOperator, "forming")
	require.NoError(t, err)
	assert.Equal(t, "ITEM-1", itemCode)

	instruction, err := eng.ResumeUnit(ctx, testOperator, "forming", tokenValue)
	require.NoError(t, err)

	_, ok := instruction.(ShowMenu)
	assert.True(t, ok)

	session, ok := eng.Session(testOperator, "forming")
	require.True(t, ok)
	assert.Equal(t, "ITEM-1", session.Correlation.ItemCode)
	assert.Equal(t, "BOX-9", session.Correlation.ContainerCode)

	// The token is single-use.
	_, err = eng.ResumeUnit(ctx, testOperator, "forming", tokenValue)
	assert.True(t, persistence.IsTokenNotFound(err))
}

func TestEngine_Continuation_SampleCounterAdvances(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	pair := models.CapturedPair{ContainerCode: "BOX-9", ItemCode: "ITEM-1"}

	_, err := eng.StartCapture(ctx, testOperator, "forming", pair)
	require.NoError(t, err)

	answer(t, eng, "forming", "shell_diameter", "22")

	record, err := eng.Finish(ctx, testOperator, "forming")
	require.NoError(t, err)
	assert.Equal(t, 1, record.Values["sample_number"])

	tokenValue, _, err := eng.ContinuationOffer(ctx, testOperator, "forming")
	require.NoError(t, err)

	_, err = eng.ResumeUnit(ctx, testOperator, "forming", tokenValue)
	require.NoError(t, err)

	session, ok := eng.Session(testOperator, "forming")
	require.True(t, ok)
	assert.Equal(t, 2, session.Correlation.SampleNumber)

	answer(t, eng, "forming", "sample_weight", "305")

	record, err = eng.Finish(ctx, testOperator, "forming")
	require.NoError(t, err)
	assert.Equal(t, 2, record.Values["sample_number"])

	// Each continuation pass counts one further sample.
	tokenValue, _, err = eng.ContinuationOffer(ctx, testOperator, "forming")
	require.NoError(t, err)

	_, err = eng.ResumeUnit(ctx, testOperator, "forming", tokenValue)
	require.NoError(t, err)

	session, ok = eng.Session(testOperator, "forming")
	require.True(t, ok)
	assert.Equal(t, 3, session.Correlation.SampleNumber)
}

func TestEngine_ResumeUnit_RejectedRequestKeepsToken(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Start(ctx, testOperator, "forming", models.Correlation{ItemCode: "ITEM-1"})
	require.NoError(t, err)

	answer(t, eng, "forming", "shell_diameter", "22")

	_, err = eng.Finish(ctx, testOperator, "forming")
	require.NoError(t, err)

	tokenValue, _, err := eng.ContinuationOffer(ctx, testOperator, "forming")
	require.NoError(t, err)

	_, err = eng.ResumeUnit(ctx, testOperator, "bottling", tokenValue)
	assert.ErrorIs(t, err, ErrUnknownProcess)

	_, err = eng.ResumeUnit(ctx, 999, "forming", tokenValue)
	assert.ErrorIs(t, err, ErrOperatorNotRegistered)

	// Neither rejection burned the token.
	_, err = eng.ResumeUnit(ctx, testOperator, "forming", tokenValue)
	assert.NoError(t, err)
}

func TestEngine_ContinuationOffer_NoRecords(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	_, _, err := eng.ContinuationOffer(context.Background(), testOperator, "forming")
	assert.True(t, persistence.IsRecordNotFound(err))
}

func TestEngine_StartCapture(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	ctx := context.Background()

	pair := models.CapturedPair{ContainerCode: "BOX-9", ItemCode: "ITEM-1"}

	_, err := eng.StartCapture(ctx, testOperator, "forming", pair)
	require.NoError(t, err)

	session, ok := eng.Session(testOperator, "forming")
	require.True(t, ok)
	assert.NotEmpty(t, session.Correlation.UnitSessionID)
	assert.Equal(t, 1, session.Correlation.SampleNumber)

	// Another registered operator scanning the same unit is rejected.
	err = store.Operators().Save(ctx, &models.Operator{ID: 200, FullName: "Second Operator"})
	require.NoError(t, err)

	_, err = eng.StartCapture(ctx, 200, "forming", pair)
	assert.True(t, persistence.IsUnitOwned(err))
}

func TestEngine_CompleteUnit(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	ctx := context.Background()

	pair := models.CapturedPair{ItemCode: "ITEM-1"}

	_, err := eng.StartCapture(ctx, testOperator, "forming", pair)
	require.NoError(t, err)

	require.NoError(t, eng.CompleteUnit(ctx, testOperator, "forming"))

	_, ok := eng.Session(testOperator, "forming")
	assert.False(t, ok)

	_, err = store.UnitSessions().ActiveForOperator(ctx, testOperator, "forming")
	assert.True(t, persistence.IsUnitSessionNotFound(err))

	// The unit is claimable again once completed.
	err = store.Operators().Save(ctx, &models.Operator{ID: 200, FullName: "Second Operator"})
	require.NoError(t, err)

	_, err = eng.StartCapture(ctx, 200, "forming", pair)
	assert.NoError(t, err)
}

func TestCheckCompletion_MissingAttachment(t *testing.T) {
	t.Parallel()

	reg, err := registry.New()
	require.NoError(t, err)

	def, _ := reg.Process("forming")

	session := &models.Session{
		Values: map[string]any{"mince_contamination": "defect"},
		Photos: map[string][]string{},
	}

	err = checkCompletion(def, session)
	require.Error(t, err)
	assert.True(t, IsMissingAttachment(err))
	assert.Contains(t, err.Error(), "mince_contamination")
}

func TestCheckCompletion_MissingComment(t *testing.T) {
	t.Parallel()

	reg, err := registry.New()
	require.NoError(t, err)

	def, _ := reg.Process("accumulation")

	session := &models.Session{
		Values: map[string]any{"organoleptics": "defect"},
		Photos: map[string][]string{},
	}

	err = checkCompletion(def, session)
	require.Error(t, err)
	assert.True(t, IsMissingComment(err))
	assert.Contains(t, err.Error(), "organoleptics")
}

func TestHeadlineNumeric_FirstInChainOrder(t *testing.T) {
	t.Parallel()

	reg, err := registry.New()
	require.NoError(t, err)

	def, _ := reg.Process("packaging")

	session := &models.Session{
		Values: map[string]any{
			"weight_technologist": 312.0,
			"gas_mixture":         "norm",
		},
	}

	// gas_mixture is a choice step; the first numeric answered wins.
	headline := headlineNumeric(def, session)
	require.NotNil(t, headline)
	assert.InDelta(t, 312.0, *headline, 1e-9)
}
