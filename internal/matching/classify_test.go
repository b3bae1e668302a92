package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_AllAgree(t *testing.T) {
	tag1, tag2, tag3 := Classify(true, Flags{Script: true, Price: true, Quantity: true})
	assert.Equal(t, TagPreTradeFound, tag1)
	assert.Equal(t, TagDetailsMatching, tag2)
	assert.Empty(t, tag3)

	tag1, _, _ = Classify(false, Flags{Script: true, Price: true, Quantity: true})
	assert.Equal(t, TagPostTradeFound, tag1)
}

func TestClassify_TwoAgree(t *testing.T) {
	tag1, tag2, tag3 := Classify(true, Flags{Script: true, Price: true})
	assert.Equal(t, TagPreTradeFound, tag1)
	assert.Equal(t, TagDetailsNotMatching, tag2)
	assert.Equal(t, "Quantity", tag3)

	_, _, tag3 = Classify(true, Flags{Script: true, Quantity: true})
	assert.Equal(t, "Price", tag3)

	_, _, tag3 = Classify(true, Flags{Price: true, Quantity: true})
	assert.Equal(t, "Script", tag3)
}

func TestClassify_OnlyScript(t *testing.T) {
	tag1, tag2, tag3 := Classify(false, Flags{Script: true})
	assert.Equal(t, TagPostTradeFound, tag1)
	assert.Equal(t, TagDetailsNotMatching, tag2)
	assert.Equal(t, "Price & Quantity", tag3)
}

func TestClassify_ScriptDisagrees(t *testing.T) {
	tag1, tag2, tag3 := Classify(true, Flags{Price: true})
	assert.Equal(t, TagNoPostTradeFound, tag1)
	assert.Empty(t, tag2)
	assert.Empty(t, tag3)
}

func TestClassify_NothingAgrees(t *testing.T) {
	tag1, _, _ := Classify(true, Flags{})
	assert.Equal(t, TagNonObservatoryCall, tag1)
}

func TestLabel_JoinsNonEmpty(t *testing.T) {
	assert.Equal(t, "Pre trade found / Details matching", Label(TagPreTradeFound, TagDetailsMatching, ""))
	assert.Equal(t, "No call record found", Label(TagNoCallRecordFound, "", ""))
	assert.Equal(t,
		"Post trade found / Details not matching / Script",
		Label(TagPostTradeFound, TagDetailsNotMatching, "Script"))
}
