package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventRequiresIDAndStatus(t *testing.T) {
	_, err := ParseEvent([]byte(`{"status":"succeeded"}`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`{"id":"pred-1"}`))
	assert.Error(t, err)

	event, err := ParseEvent([]byte(`{"id":"pred-1","status":"processing"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOther, event.Outcome())
}

func TestParseEventRejectsInvalidJSON(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))
	assert.Error(t, err)
}

func TestOutcomeMapping(t *testing.T) {
	assert.Equal(t, OutcomeSucceeded, (&PredictionEvent{Status: "succeeded"}).Outcome())
	assert.Equal(t, OutcomeFailed, (&PredictionEvent{Status: "failed"}).Outcome())
	assert.Equal(t, OutcomeOther, (&PredictionEvent{Status: "starting"}).Outcome())
	assert.Equal(t, OutcomeOther, (&PredictionEvent{Status: "canceled"}).Outcome())
}

func TestOutputURLsNormalization(t *testing.T) {
	event, err := ParseEvent([]byte(`{"id":"a","status":"succeeded","output":"https://x/one.png"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/one.png"}, event.OutputURLs())
	assert.Equal(t, "https://x/one.png", event.FirstOutputURL())

	event, err = ParseEvent([]byte(`{"id":"a","status":"succeeded","output":["https://x/1.png","https://x/2.png"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/1.png", "https://x/2.png"}, event.OutputURLs())
	assert.Equal(t, "https://x/1.png", event.FirstOutputURL())

	event, err = ParseEvent([]byte(`{"id":"a","status":"succeeded"}`))
	require.NoError(t, err)
	assert.Nil(t, event.OutputURLs())
	assert.Empty(t, event.FirstOutputURL())

	event, err = ParseEvent([]byte(`{"id":"a","status":"succeeded","output":""}`))
	require.NoError(t, err)
	assert.Empty(t, event.FirstOutputURL())
}
