package derivation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAcceptsPrefixedMediaKeys(t *testing.T) {
	v := NewValidator("VID")

	assert.NoError(t, v.Validate(SourceEvent{Bucket: "b", Key: "VID_party.mp4"}))
	assert.NoError(t, v.Validate(SourceEvent{Bucket: "b", Key: "/videos/VID_trip.mp4"}))
	assert.NoError(t, v.Validate(SourceEvent{Bucket: "b", Key: "videos/VID_clip.WEBM"}), "extension match is case-insensitive")
}

func TestValidatorRejectsDisallowedExtension(t *testing.T) {
	v := NewValidator("VID")

	err := v.Validate(SourceEvent{Bucket: "b", Key: "notes.txt"})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleExtension, verr.Rule)
	assert.Equal(t, "notes.txt", verr.Value)
}

func TestValidatorRejectsMissingPrefix(t *testing.T) {
	v := NewValidator("VID")

	err := v.Validate(SourceEvent{Bucket: "b", Key: "clip.mp4"})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RulePrefix, verr.Rule)
}

func TestValidatorChecksExtensionBeforePrefix(t *testing.T) {
	v := NewValidator("VID")

	err := v.Validate(SourceEvent{Bucket: "b", Key: "clip.txt"})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleExtension, verr.Rule)
}

func TestValidatorMatchesPrefixOnBasename(t *testing.T) {
	v := NewValidator("VID")

	assert.NoError(t, v.Validate(SourceEvent{Bucket: "b", Key: "/nested/path/VID_a.mov"}))
	assert.Error(t, v.Validate(SourceEvent{Bucket: "b", Key: "/VID_dir/other.mp4"}))
}
